package supportapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
)

type createIncidentRequest struct {
	CustomerID  int64  `json:"customer_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req createIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid payload"))
		return
	}

	in, err := a.svc.CreateIncident(r.Context(), req.CustomerID, req.Date, req.Description, req.Status)
	if err != nil {
		a.writeError(w, r, err, "create incident failed")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int64("soporte.incident.id", in.ID),
		attribute.String("soporte.incident.tier", string(in.PriorityTier)),
	)

	writeJSON(w, http.StatusCreated, in)
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid incident id"))
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid payload"))
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("soporte.incident.id", id))

	msg, err := a.svc.UpdateIncidentStatus(r.Context(), id, req.Status)
	if err != nil {
		a.writeError(w, r, err, "update incident status failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
