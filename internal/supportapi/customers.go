package supportapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/soporte/internal/support"
)

type createCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid payload"))
		return
	}

	c, err := a.svc.CreateCustomer(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		a.writeError(w, r, err, "create customer failed")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("soporte.customer.id", c.ID))

	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.svc.ListCustomers(r.Context())
	if err != nil {
		a.writeError(w, r, err, "list customers failed")
		return
	}
	if customers == nil {
		customers = []support.Customer{}
	}
	writeJSON(w, http.StatusOK, customers)
}

func (a *API) handleCustomerIncidents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid customer id"))
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("soporte.customer.id", id))

	incidents, err := a.svc.CustomerIncidents(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "list customer incidents failed")
		return
	}
	if incidents == nil {
		incidents = []support.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}
