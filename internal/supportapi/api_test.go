package supportapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/soporte/internal/etl"
	"github.com/linnemanlabs/soporte/internal/support"
	"github.com/linnemanlabs/soporte/internal/support/memstore"
)

func newTestAPI(t *testing.T) (*API, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	svc := support.NewService(store, nil, nil, nil)
	pipeline := etl.NewPipeline(store, nil, nil)
	api := New(nil, svc, pipeline)
	return api, store
}

func newTestRouter(t *testing.T) (chi.Router, *memstore.Store) {
	t.Helper()
	api, store := newTestAPI(t)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r, store
}

func postJSON(t *testing.T, r chi.Router, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t)
	if api.logger == nil {
		t.Fatal("New(nil, ...) left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	svc := support.NewService(store, nil, nil, nil)
	api := New(log.Nop(), svc, etl.NewPipeline(store, nil, nil))
	if api.logger == nil {
		t.Fatal("New(logger, ...) left logger nil")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New with nil service did not panic")
		}
	}()
	New(nil, nil, etl.NewPipeline(memstore.New(), nil, nil))
}

func TestNew_NilIngestor_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New with nil ingestor did not panic")
		}
	}()
	New(nil, support.NewService(memstore.New(), nil, nil, nil), nil)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"GET welcome", http.MethodGet, "/", "", http.StatusOK},
		{"POST customer", http.MethodPost, "/api/v1/customers", `{"name":"Ana","email":"ana@example.com","phone":"555"}`, http.StatusCreated},
		{"GET customers", http.MethodGet, "/api/v1/customers", "", http.StatusOK},
		{"GET stats", http.MethodGet, "/api/v1/stats", "", http.StatusOK},
		{"DELETE customers not allowed", http.MethodDelete, "/api/v1/customers", "", http.StatusMethodNotAllowed},
		{"PUT customers not allowed", http.MethodPut, "/api/v1/customers", "", http.StatusMethodNotAllowed},
		{"GET ingest not allowed", http.MethodGet, "/api/v1/ingest", "", http.StatusMethodNotAllowed},
		{"POST stats not allowed", http.MethodPost, "/api/v1/stats", "", http.StatusMethodNotAllowed},
		{"GET unknown", http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
		{"GET v2", http.MethodGet, "/api/v2/customers", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Customers

func TestHandleCreateCustomer(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec := postJSON(t, r, "/api/v1/customers", `{"name":"Ana","email":"ana@example.com","phone":"555-0001"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	c := decodeBody[support.Customer](t, rec)
	if c.ID == 0 {
		t.Error("expected assigned id in response")
	}
	if c.Email != "ana@example.com" {
		t.Errorf("email = %q, want %q", c.Email, "ana@example.com")
	}
}

func TestHandleCreateCustomer_Errors(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	// seed for the duplicate case
	rec := postJSON(t, r, "/api/v1/customers", `{"name":"Ana","email":"dup@example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d, want 201", rec.Code)
	}

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"invalid JSON", `{bad`, "invalid payload"},
		{"missing name", `{"email":"x@example.com"}`, "invalid name: must not be empty"},
		{"missing email", `{"name":"X"}`, "invalid email: must not be empty"},
		{"duplicate email", `{"name":"Otra","email":"dup@example.com"}`, "email already registered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, r, "/api/v1/customers", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			body := decodeBody[map[string]string](t, rec)
			if body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestHandleListCustomers_SortedByName(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	for _, c := range []string{
		`{"name":"Zoe","email":"z@example.com"}`,
		`{"name":"Ana","email":"a@example.com"}`,
	} {
		if rec := postJSON(t, r, "/api/v1/customers", c); rec.Code != http.StatusCreated {
			t.Fatalf("seed status = %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	customers := decodeBody[[]support.Customer](t, rec)
	if len(customers) != 2 {
		t.Fatalf("len = %d, want 2", len(customers))
	}
	if customers[0].Name != "Ana" || customers[1].Name != "Zoe" {
		t.Errorf("order = %q, %q; want Ana, Zoe", customers[0].Name, customers[1].Name)
	}
}

func TestHandleListCustomers_Empty(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}

func TestHandleCustomerIncidents(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec := postJSON(t, r, "/api/v1/customers", `{"name":"Ana","email":"ana@example.com"}`)
	c := decodeBody[support.Customer](t, rec)

	rec = postJSON(t, r, "/api/v1/incidents",
		fmt.Sprintf(`{"customer_id":%d,"date":"01-03-2024","description":"sin red","status":"ABIERTA"}`, c.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create incident status = %d: %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/customers/%d/incidents", c.ID), http.NoBody)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec2.Code)
	}
	incidents := decodeBody[[]support.Incident](t, rec2)
	if len(incidents) != 1 {
		t.Fatalf("len = %d, want 1", len(incidents))
	}
	if incidents[0].Description != "sin red" {
		t.Errorf("description = %q", incidents[0].Description)
	}
}

func TestHandleCustomerIncidents_Errors(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"unknown customer", "/api/v1/customers/99/incidents", http.StatusNotFound},
		{"non-numeric id", "/api/v1/customers/abc/incidents", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// Incidents

func TestHandleCreateIncident_Classifies(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := postJSON(t, r, "/api/v1/customers", `{"name":"Ana","email":"ana@example.com"}`)
	c := decodeBody[support.Customer](t, rec)

	rec = postJSON(t, r, "/api/v1/incidents",
		fmt.Sprintf(`{"customer_id":%d,"date":"01-03-2024","description":"servidor caído urgente","status":"ABIERTA"}`, c.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	in := decodeBody[support.Incident](t, rec)
	if in.PriorityTier != "CRITICAL" {
		t.Errorf("tier = %q, want CRITICAL", in.PriorityTier)
	}
	if in.PriorityScore < 0.8 {
		t.Errorf("score = %v, want >= 0.8", in.PriorityScore)
	}
}

func TestHandleCreateIncident_UnknownCustomer(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := postJSON(t, r, "/api/v1/incidents", `{"customer_id":99,"description":"x","status":"ABIERTA"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["error"] != "customer does not exist" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestHandleUpdateStatus(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := postJSON(t, r, "/api/v1/customers", `{"name":"Ana","email":"ana@example.com","phone":"555-0001"}`)
	c := decodeBody[support.Customer](t, rec)
	rec = postJSON(t, r, "/api/v1/incidents",
		fmt.Sprintf(`{"customer_id":%d,"date":"01-03-2024","description":"sin red","status":"ABIERTA"}`, c.ID))
	in := decodeBody[support.Incident](t, rec)

	req := httptest.NewRequest(http.MethodPut,
		fmt.Sprintf("/api/v1/incidents/%d/status", in.ID),
		strings.NewReader(`{"status":"CERRADA"}`))
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec2.Code, rec2.Body)
	}

	body := decodeBody[map[string]string](t, rec2)
	msg := body["message"]
	for _, want := range []string{"Ana", "ana@example.com", "555-0001", "01-03-2024", "sin red", "ABIERTA", "CERRADA"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestHandleUpdateStatus_NotFound(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/incidents/99/status",
		strings.NewReader(`{"status":"CERRADA"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// Ingest

func multipartBody(t *testing.T, parts map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range parts {
		fw, err := mw.CreateFormFile(name, name+".csv")
		if err != nil {
			t.Fatalf("CreateFormFile %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write part %s: %v", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandleIngest(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t)

	customers := "id;nombre;email;telefono\n" +
		"1;Ana;ana@example.com;555-0001\n" +
		"2;Luis;luis@example.com;555-0002\n" +
		"3;Repetida;ana@example.com;555-0003\n"
	incidents := "id;id_cliente;fecha;descripcion;estado\n" +
		"1;1;01-03-2024;servidor caída urgente;ABIERTA\n" +
		"2;99;01-03-2024;no enciende;ABIERTA\n"

	body, contentType := multipartBody(t, map[string]string{
		"customers_file": customers,
		"incidents_file": incidents,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	report := decodeBody[etl.Report](t, rec)
	if report.LinesRead != 5 {
		t.Errorf("lines_read = %d, want 5", report.LinesRead)
	}
	if report.RowsInserted != 3 {
		t.Errorf("rows_inserted = %d, want 3", report.RowsInserted)
	}
	if !strings.Contains(report.Message, "customer id 99 does not exist") {
		t.Errorf("message = %q, want unknown-customer entry", report.Message)
	}

	st, _ := store.Stats(req.Context())
	if st.TotalCustomers != 2 || st.TotalIncidents != 1 {
		t.Errorf("Stats = %+v, want 2 customers and 1 incident", st)
	}
}

func TestHandleIngest_MissingPart(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{
		"customers_file": "id;nombre;email;telefono\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	respBody := decodeBody[map[string]string](t, rec)
	if respBody["error"] != "missing incidents_file part" {
		t.Errorf("error = %q", respBody["error"])
	}
}

func TestHandleIngest_NotMultipart(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := postJSON(t, r, "/api/v1/ingest", `{"not":"multipart"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleIngest_MalformedFile(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{
		"customers_file": "totally,wrong,header\n",
		"incidents_file": "id;id_cliente;fecha;descripcion;estado\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
}

// Stats

func TestHandleStats(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	rec := postJSON(t, r, "/api/v1/customers", `{"name":"Ana","email":"ana@example.com"}`)
	c := decodeBody[support.Customer](t, rec)
	postJSON(t, r, "/api/v1/incidents",
		fmt.Sprintf(`{"customer_id":%d,"description":"servidor caída urgente","status":"ABIERTA"}`, c.ID))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec2.Code)
	}

	st := decodeBody[support.Stats](t, rec2)
	if st.TotalCustomers != 1 {
		t.Errorf("total_customers = %d, want 1", st.TotalCustomers)
	}
	if st.TotalIncidents != 1 {
		t.Errorf("total_incidents = %d, want 1", st.TotalIncidents)
	}
	if st.ByTier.Critical != 1 {
		t.Errorf("critical = %d, want 1", st.ByTier.Critical)
	}
	if st.ByStatus.Open != 1 {
		t.Errorf("open = %d, want 1", st.ByStatus.Open)
	}
}

// Fuzz

func FuzzCreateCustomer(f *testing.F) {
	store := memstore.New()
	svc := support.NewService(store, nil, nil, nil)
	api := New(nil, svc, etl.NewPipeline(store, nil, nil))
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := [][]byte{
		nil,
		[]byte(""),
		[]byte("{}"),
		[]byte(`{"name":"Ana","email":"ana@example.com","phone":"555"}`),
		[]byte("{invalid json"),
		[]byte("\x00\x01\x02\xff\xfe"),
		[]byte(strings.Repeat("a", 10000)),
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, body []byte) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		switch rec.Code {
		case http.StatusCreated, http.StatusBadRequest:
		default:
			t.Errorf("POST /api/v1/customers with body len=%d = %d, want 201 or 400", len(body), rec.Code)
		}
	})
}

func FuzzIngestUpload(f *testing.F) {
	store := memstore.New()
	svc := support.NewService(store, nil, nil, nil)
	api := New(nil, svc, etl.NewPipeline(store, nil, nil))
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := []struct {
		customers, incidents []byte
	}{
		{nil, nil},
		{[]byte(""), []byte("")},
		{
			[]byte("id;nombre;email;telefono\n1;Ana;ana@example.com;555-0001\n"),
			[]byte("id;id_cliente;fecha;descripcion;estado\n1;1;01-03-2024;servidor caído;ABIERTA\n"),
		},
		{[]byte("id,nombre,email,telefono\n"), []byte("id;id_cliente;fecha;descripcion;estado\n")},
		{[]byte("id;nombre;email;telefono\n1;\"broken;x@y;5\n"), []byte("id;id_cliente;fecha;descripcion;estado\n")},
		{[]byte("\x00\x01\x02\xff\xfe"), []byte("\xfe\xff")},
		{[]byte(strings.Repeat("a;", 10000)), []byte(strings.Repeat(";b", 10000))},
	}
	for _, s := range seeds {
		f.Add(s.customers, s.incidents)
	}

	f.Fuzz(func(t *testing.T, customers, incidents []byte) {
		body, contentType := multipartBody(t, map[string]string{
			"customers_file": string(customers),
			"incidents_file": string(incidents),
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		// Must not panic regardless of file contents
		r.ServeHTTP(rec, req)

		switch rec.Code {
		case http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError:
		default:
			t.Errorf("POST /api/v1/ingest with %d/%d byte files = %d, want 200, 400, or 500",
				len(customers), len(incidents), rec.Code)
		}

		if rec.Code == http.StatusOK {
			var report etl.Report
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
				t.Fatalf("unmarshal report: %v", err)
			}
			if report.RunID == "" {
				t.Error("successful ingest returned an empty run id")
			}
		}
	})
}
