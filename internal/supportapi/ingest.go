package supportapi

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/soporte/internal/etl"
)

// multipartMemory bounds the in-memory portion of a parsed upload; larger
// parts spill to temp files. The request body itself is capped by the
// MaxBody middleware.
const multipartMemory = 4 << 20

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("expected multipart form upload"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	customersFile, _, err := r.FormFile("customers_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("missing customers_file part"))
		return
	}
	defer func() { _ = customersFile.Close() }()

	incidentsFile, _, err := r.FormFile("incidents_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("missing incidents_file part"))
		return
	}
	defer func() { _ = incidentsFile.Close() }()

	report, err := a.ingestor.Ingest(r.Context(), customersFile, incidentsFile)
	if err != nil {
		var ingErr *etl.IngestError
		if errors.As(err, &ingErr) {
			a.logger.Error(r.Context(), err, "ingest run failed", "phase", ingErr.Phase)
			writeJSON(w, http.StatusInternalServerError, errBody("ingestion failed"))
			return
		}
		a.writeError(w, r, err, "ingest failed")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("soporte.ingest.run_id", report.RunID),
		attribute.Int("soporte.ingest.rows_inserted", report.RowsInserted),
	)

	writeJSON(w, http.StatusOK, report)
}
