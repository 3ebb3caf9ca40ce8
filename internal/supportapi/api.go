// Package supportapi exposes the customer and incident operations over HTTP.
package supportapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/soporte/internal/etl"
	"github.com/linnemanlabs/soporte/internal/support"
)

// SupportService defines the business operations supportapi needs.
type SupportService interface {
	CreateCustomer(ctx context.Context, name, email, phone string) (*support.Customer, error)
	CreateIncident(ctx context.Context, customerID int64, date, description, status string) (*support.Incident, error)
	ListCustomers(ctx context.Context) ([]support.Customer, error)
	CustomerIncidents(ctx context.Context, customerID int64) ([]support.Incident, error)
	UpdateIncidentStatus(ctx context.Context, id int64, status string) (string, error)
	Stats(ctx context.Context) (*support.Stats, error)
}

// Ingestor runs bulk file ingestion.
type Ingestor interface {
	Ingest(ctx context.Context, customersFile, incidentsFile io.Reader) (*etl.Report, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      SupportService
	ingestor Ingestor
}

// New creates a new API handler.
func New(logger log.Logger, svc SupportService, ingestor Ingestor) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("support service is required"))
	}
	if ingestor == nil {
		panic(xerrors.New("ingestor is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		ingestor: ingestor,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/", a.handleWelcome)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/customers", a.handleCreateCustomer)
		r.Get("/customers", a.handleListCustomers)
		r.Get("/customers/{id}/incidents", a.handleCustomerIncidents)
		r.Post("/incidents", a.handleCreateIncident)
		r.Put("/incidents/{id}/status", a.handleUpdateStatus)
		r.Post("/ingest", a.handleIngest)
		r.Get("/stats", a.handleStats)
	})
}

func (a *API) handleWelcome(w http.ResponseWriter, r *http.Request) {
	vi := v.Get()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "soporte incident support API",
		"version": vi.Version,
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// writeError maps the business error taxonomy to status codes. Anything
// unrecognized is an internal error and gets logged.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var vErr *support.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errBody(vErr.Error()))
	case errors.Is(err, support.ErrDuplicateEmail):
		writeJSON(w, http.StatusBadRequest, errBody("email already registered"))
	case errors.Is(err, support.ErrUnknownCustomer):
		writeJSON(w, http.StatusBadRequest, errBody("customer does not exist"))
	case errors.Is(err, etl.ErrMalformedInput):
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
	case errors.Is(err, support.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody("not found"))
	case errors.Is(err, support.ErrOrphanedIncident):
		writeJSON(w, http.StatusNotFound, errBody("incident references a missing customer"))
	default:
		a.logger.Error(r.Context(), err, msg)
		writeJSON(w, http.StatusInternalServerError, errBody("internal error"))
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
