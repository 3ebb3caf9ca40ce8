// Package pgstore provides a PostgreSQL implementation of support.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/soporte/internal/severity"
	"github.com/linnemanlabs/soporte/internal/support"
)

var tracer = otel.Tracer("github.com/linnemanlabs/soporte/internal/support/pgstore")

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same statements run standalone or inside a Batch transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists customers and incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// New applies the schema and returns a ready Store backed by pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, q: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateCustomer inserts a customer and fills in the assigned id. A unique
// violation on email maps to support.ErrDuplicateEmail.
func (s *Store) CreateCustomer(ctx context.Context, c *support.Customer) error {
	ctx, span := tracer.Start(ctx, "pgstore.CreateCustomer", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	err := s.q.QueryRow(ctx,
		`INSERT INTO customers (name, email, phone) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		c.Name, c.Email, c.Phone,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("customer %q: %w", c.Email, support.ErrDuplicateEmail)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// FindCustomerByEmail retrieves a customer by exact email match.
func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (*support.Customer, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.FindCustomerByEmail", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	return s.scanCustomer(span,
		s.q.QueryRow(ctx, customerSelect+` WHERE email = $1`, email))
}

// FindCustomerByID retrieves a customer by id.
func (s *Store) FindCustomerByID(ctx context.Context, id int64) (*support.Customer, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.FindCustomerByID", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	return s.scanCustomer(span,
		s.q.QueryRow(ctx, customerSelect+` WHERE id = $1`, id))
}

// CreateIncident inserts an incident and fills in the assigned id. The
// customer reference is checked first; a missing customer maps to
// support.ErrUnknownCustomer.
func (s *Store) CreateIncident(ctx context.Context, in *support.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.CreateIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	var exists bool
	if err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, in.CustomerID,
	).Scan(&exists); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("check customer: %w", err)
	}
	if !exists {
		return fmt.Errorf("customer %d: %w", in.CustomerID, support.ErrUnknownCustomer)
	}

	err := s.q.QueryRow(ctx,
		`INSERT INTO incidents (customer_id, incident_date, description, status, priority_tier, priority_score)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		in.CustomerID, in.Date, in.Description, in.Status, string(in.PriorityTier), in.PriorityScore,
	).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// FindIncident looks up an incident by the (customer, date, description)
// dedup key.
func (s *Store) FindIncident(ctx context.Context, customerID int64, date, description string) (*support.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.FindIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	return s.scanIncident(span, s.q.QueryRow(ctx,
		incidentSelect+` WHERE customer_id = $1 AND incident_date = $2 AND description = $3 LIMIT 1`,
		customerID, date, description))
}

// GetIncident retrieves an incident by id.
func (s *Store) GetIncident(ctx context.Context, id int64) (*support.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	return s.scanIncident(span,
		s.q.QueryRow(ctx, incidentSelect+` WHERE id = $1`, id))
}

// ListCustomersByName returns all customers ordered by name ascending.
func (s *Store) ListCustomersByName(ctx context.Context) ([]support.Customer, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListCustomersByName", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.q.Query(ctx, customerSelect+` ORDER BY name, id`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var out []support.Customer
	for rows.Next() {
		var c support.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return out, nil
}

// ListIncidentsForCustomer returns a customer's incidents, newest first.
func (s *Store) ListIncidentsForCustomer(ctx context.Context, customerID int64) ([]support.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListIncidentsForCustomer", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.q.Query(ctx,
		incidentSelect+` WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []support.Incident
	for rows.Next() {
		var (
			in   support.Incident
			tier string
		)
		if err := rows.Scan(&in.ID, &in.CustomerID, &in.Date, &in.Description, &in.Status,
			&tier, &in.PriorityScore, &in.CreatedAt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		in.PriorityTier = severity.Tier(tier)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// SetIncidentStatus replaces the status of an incident and returns the
// prior value. A missing incident maps to support.ErrNotFound.
func (s *Store) SetIncidentStatus(ctx context.Context, id int64, status string) (string, error) {
	ctx, span := tracer.Start(ctx, "pgstore.SetIncidentStatus", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	// The CTE sees the pre-statement snapshot, so old.status is the value
	// being replaced.
	var prior string
	err := s.q.QueryRow(ctx,
		`WITH old AS (SELECT status FROM incidents WHERE id = $1)
		 UPDATE incidents SET status = $2 FROM old WHERE incidents.id = $1
		 RETURNING old.status`,
		id, status,
	).Scan(&prior)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("incident %d: %w", id, support.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("update status: %w", err)
	}
	return prior, nil
}

// Stats counts records grouped by priority tier and status.
func (s *Store) Stats(ctx context.Context) (*support.Stats, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Stats", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	st := &support.Stats{}
	if err := s.q.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM customers), (SELECT count(*) FROM incidents)`,
	).Scan(&st.TotalCustomers, &st.TotalIncidents); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.q.Query(ctx,
		`SELECT priority_tier, status, count(*) FROM incidents GROUP BY priority_tier, status`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tier, status string
			n            int64
		)
		if err := rows.Scan(&tier, &status, &n); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan group: %w", err)
		}
		switch severity.Tier(tier) {
		case severity.TierCritical:
			st.ByTier.Critical += n
		case severity.TierHigh:
			st.ByTier.High += n
		case severity.TierMedium:
			st.ByTier.Medium += n
		case severity.TierNormal:
			st.ByTier.Normal += n
		}
		switch status {
		case support.StatusOpen:
			st.ByStatus.Open += n
		case support.StatusClosed:
			st.ByStatus.Closed += n
		case support.StatusInProgress:
			st.ByStatus.InProgress += n
		}
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return st, nil
}

// Batch runs fn inside a single transaction. Any error rolls back every
// write fn made.
func (s *Store) Batch(ctx context.Context, fn func(support.Store) error) error {
	ctx, span := tracer.Start(ctx, "pgstore.Batch", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "TRANSACTION"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const customerSelect = `SELECT id, name, email, phone, created_at FROM customers`

const incidentSelect = `SELECT id, customer_id, incident_date, description, status,
	priority_tier, priority_score, created_at FROM incidents`

// scanCustomer scans a single customer row. Returns (nil, false, nil) when no
// row is found.
func (s *Store) scanCustomer(span trace.Span, row pgx.Row) (*support.Customer, bool, error) {
	var c support.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("scan customer: %w", err)
	}
	return &c, true, nil
}

// scanIncident scans a single incident row. Returns (nil, false, nil) when no
// row is found.
func (s *Store) scanIncident(span trace.Span, row pgx.Row) (*support.Incident, bool, error) {
	var (
		in   support.Incident
		tier string
	)
	err := row.Scan(&in.ID, &in.CustomerID, &in.Date, &in.Description, &in.Status,
		&tier, &in.PriorityScore, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("scan incident: %w", err)
	}
	in.PriorityTier = severity.Tier(tier)
	return &in, true, nil
}
