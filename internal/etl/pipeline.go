// Package etl implements bulk ingestion of customer and incident files.
//
// Ingestion runs in two phases: customers first, then incidents, so incident
// rows may reference customers introduced by the same upload. Each phase
// commits as one batch; a store failure rolls back the current phase only.
package etl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/soporte/internal/severity"
	"github.com/linnemanlabs/soporte/internal/support"
)

// Report summarizes one ingestion run. LinesRead counts data rows across
// both files regardless of outcome; Message concatenates the skip log.
type Report struct {
	RunID        string `json:"run_id"`
	LinesRead    int    `json:"lines_read"`
	RowsInserted int    `json:"rows_inserted"`
	Message      string `json:"message"`
}

// IngestError wraps an unexpected store failure during a phase. The phase's
// uncommitted rows are rolled back; prior phases stay committed.
type IngestError struct {
	Phase string
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s phase: %v", e.Phase, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Pipeline ingests bulk files against a store.
type Pipeline struct {
	store   support.Store
	logger  log.Logger
	metrics *Metrics
}

// NewPipeline creates a Pipeline. logger may be nil (Nop); metrics is
// optional.
func NewPipeline(store support.Store, logger log.Logger, metrics *Metrics) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{store: store, logger: logger, metrics: metrics}
}

// Ingest parses both files and applies them to the store. Rerunning the
// same files is idempotent: customers dedup on email, incidents on
// (customer, date, description). Per-row problems land in the report's skip
// log; only an unreadable file or a store failure fails the call.
func (p *Pipeline) Ingest(ctx context.Context, customersFile, incidentsFile io.Reader) (*Report, error) {
	runID := ulid.Make().String()
	start := time.Now()
	lg := p.logger.With("run_id", runID)

	customers, err := readCustomerRows(customersFile)
	if err != nil {
		p.countRun("malformed")
		return nil, fmt.Errorf("customers file: %w", err)
	}
	incidents, err := readIncidentRows(incidentsFile)
	if err != nil {
		p.countRun("malformed")
		return nil, fmt.Errorf("incidents file: %w", err)
	}

	lg.Info(ctx, "ingest run started",
		"customer_rows", len(customers),
		"incident_rows", len(incidents),
	)

	report := &Report{
		RunID:     runID,
		LinesRead: len(customers) + len(incidents),
	}
	// Maps the customers file's own id column to store-assigned ids, for
	// both inserted and email-deduped rows. Incident rows reference these
	// file ids, which need not match what the store assigns.
	fileIDs := make(map[int64]int64, len(customers))
	var skipLog []string

	err = p.store.Batch(ctx, func(tx support.Store) error {
		return p.ingestCustomers(ctx, tx, customers, fileIDs, report, &skipLog)
	})
	if err != nil {
		p.countRun("failed")
		return nil, &IngestError{Phase: "customers", Err: err}
	}

	err = p.store.Batch(ctx, func(tx support.Store) error {
		return p.ingestIncidents(ctx, tx, incidents, fileIDs, report, &skipLog)
	})
	if err != nil {
		p.countRun("failed")
		return nil, &IngestError{Phase: "incidents", Err: err}
	}

	report.Message = strings.Join(skipLog, "\n")

	p.countRun("ok")
	if p.metrics != nil {
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	lg.Info(ctx, "ingest run complete",
		"lines_read", report.LinesRead,
		"rows_inserted", report.RowsInserted,
		"skips", len(skipLog),
		"duration", time.Since(start).Seconds(),
	)
	return report, nil
}

func (p *Pipeline) ingestCustomers(ctx context.Context, tx support.Store, rows []customerRow, fileIDs map[int64]int64, report *Report, skipLog *[]string) error {
	for i, row := range rows {
		if row.Bad != "" {
			*skipLog = append(*skipLog, fmt.Sprintf("customer row %d skipped: %s", i+1, row.Bad))
			p.countSkip("customer_malformed")
			continue
		}

		existing, ok, err := tx.FindCustomerByEmail(ctx, row.Email)
		if err != nil {
			return err
		}
		if ok {
			// Known email: silent skip, but the file id still resolves.
			if row.HasFileID {
				fileIDs[row.FileID] = existing.ID
			}
			p.countSkip("customer_duplicate")
			continue
		}

		c := &support.Customer{Name: row.Name, Email: row.Email, Phone: row.Phone}
		if err := tx.CreateCustomer(ctx, c); err != nil {
			return err
		}
		if row.HasFileID {
			fileIDs[row.FileID] = c.ID
		}
		report.RowsInserted++
		p.countInsert("customer")
	}
	return nil
}

func (p *Pipeline) ingestIncidents(ctx context.Context, tx support.Store, rows []incidentRow, fileIDs map[int64]int64, report *Report, skipLog *[]string) error {
	for i, row := range rows {
		if row.Bad != "" {
			*skipLog = append(*skipLog, fmt.Sprintf("incident row %d skipped: %s", i+1, row.Bad))
			p.countSkip("incident_malformed")
			continue
		}

		customerID, ok := fileIDs[row.FileCustomerID]
		if !ok {
			// Not in this run's customers file; fall back to a store id.
			if _, found, err := tx.FindCustomerByID(ctx, row.FileCustomerID); err != nil {
				return err
			} else if !found {
				*skipLog = append(*skipLog, fmt.Sprintf("incident skipped: customer id %d does not exist", row.FileCustomerID))
				p.countSkip("incident_unknown_customer")
				continue
			}
			customerID = row.FileCustomerID
		}

		if _, dup, err := tx.FindIncident(ctx, customerID, row.Date, row.Description); err != nil {
			return err
		} else if dup {
			p.countSkip("incident_duplicate")
			continue
		}

		tier, score := severity.Classify(row.Description)
		in := &support.Incident{
			CustomerID:    customerID,
			Date:          row.Date,
			Description:   row.Description,
			Status:        row.Status,
			PriorityTier:  tier,
			PriorityScore: score,
		}
		if err := tx.CreateIncident(ctx, in); err != nil {
			return err
		}
		report.RowsInserted++
		p.countInsert("incident")
	}
	return nil
}

func (p *Pipeline) countRun(outcome string) {
	if p.metrics != nil {
		p.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) countInsert(entity string) {
	if p.metrics != nil {
		p.metrics.RowsInserted.WithLabelValues(entity).Inc()
	}
}

func (p *Pipeline) countSkip(reason string) {
	if p.metrics != nil {
		p.metrics.RowsSkipped.WithLabelValues(reason).Inc()
	}
}
