package support

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/soporte/internal/severity"
)

// incidentDateFormat is the default date label for incidents created without
// an explicit date: day-month-year, matching the bulk file convention.
const incidentDateFormat = "02-01-2006"

// Notifier receives newly created incidents that classified CRITICAL.
type Notifier interface {
	IncidentCreated(ctx context.Context, c *Customer, in *Incident) error
}

// Service is the business boundary for single-record operations and
// reporting. Each call does its work against the store and returns typed
// results; the transport layer maps the error taxonomy to status codes.
type Service struct {
	store    Store
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new support service. logger may be nil (Nop);
// metrics and notifier are optional.
func NewService(store Store, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// CreateCustomer validates and persists a new customer.
func (s *Service) CreateCustomer(ctx context.Context, name, email, phone string) (*Customer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(email) == "" {
		return nil, &ValidationError{Field: "email", Reason: "must not be empty"}
	}

	c := &Customer{Name: name, Email: email, Phone: phone}
	if err := s.store.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CustomersCreated.Inc()
	}
	s.logger.Info(ctx, "customer created", "customer_id", c.ID, "email", c.Email)
	return c, nil
}

// CreateIncident validates the request, classifies the description, and
// persists a new incident. An empty date defaults to today's label.
func (s *Service) CreateIncident(ctx context.Context, customerID int64, date, description, status string) (*Incident, error) {
	if customerID <= 0 {
		return nil, &ValidationError{Field: "customer_id", Reason: "must be a positive id"}
	}
	if strings.TrimSpace(description) == "" {
		return nil, &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if len(description) > MaxDescriptionLen {
		return nil, &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d bytes", MaxDescriptionLen)}
	}
	if date == "" {
		date = time.Now().Format(incidentDateFormat)
	}

	tier, score := severity.Classify(description)
	in := &Incident{
		CustomerID:    customerID,
		Date:          date,
		Description:   description,
		Status:        status,
		PriorityTier:  tier,
		PriorityScore: score,
	}
	if err := s.store.CreateIncident(ctx, in); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncidentsCreated.WithLabelValues(string(tier)).Inc()
		s.metrics.PriorityScores.Observe(score)
	}
	s.logger.Info(ctx, "incident created",
		"incident_id", in.ID,
		"customer_id", in.CustomerID,
		"tier", in.PriorityTier,
		"score", in.PriorityScore,
	)

	if s.notifier != nil && tier == severity.TierCritical {
		// notify async - incident creation must not block on the webhook.
		go s.notifyCritical(context.WithoutCancel(ctx), in)
	}

	return in, nil
}

// ListCustomers returns all customers ordered by name, ascending.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.store.ListCustomersByName(ctx)
}

// CustomerIncidents returns a customer's incidents, most recent first.
// Returns ErrNotFound when the customer id does not exist.
func (s *Service) CustomerIncidents(ctx context.Context, customerID int64) ([]Incident, error) {
	if _, ok, err := s.store.FindCustomerByID(ctx, customerID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("customer %d: %w", customerID, ErrNotFound)
	}
	return s.store.ListIncidentsForCustomer(ctx, customerID)
}

// UpdateIncidentStatus replaces an incident's status and returns a
// human-readable transition summary.
func (s *Service) UpdateIncidentStatus(ctx context.Context, id int64, status string) (string, error) {
	if strings.TrimSpace(status) == "" {
		return "", &ValidationError{Field: "status", Reason: "must not be empty"}
	}

	in, ok, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("incident %d: %w", id, ErrNotFound)
	}

	c, ok, err := s.store.FindCustomerByID(ctx, in.CustomerID)
	if err != nil {
		return "", err
	}
	if !ok {
		// should not happen under the store invariants
		return "", fmt.Errorf("incident %d: %w", id, ErrOrphanedIncident)
	}

	prior, err := s.store.SetIncidentStatus(ctx, id, status)
	if err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.StatusUpdates.Inc()
	}
	s.logger.Info(ctx, "incident status updated",
		"incident_id", id,
		"prior_status", prior,
		"new_status", status,
	)

	msg := fmt.Sprintf(
		"Incident %d for customer %s, whose email is %s and whose phone is %s, dated %s with description '%s' has moved from %s to %s",
		in.ID, c.Name, c.Email, c.Phone, in.Date, in.Description, prior, status,
	)
	return msg, nil
}

// Stats returns an exact point-in-time snapshot of store counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) notifyCritical(ctx context.Context, in *Incident) {
	c, ok, err := s.store.FindCustomerByID(ctx, in.CustomerID)
	if err != nil || !ok {
		s.logger.Error(ctx, err, "notify: customer lookup failed", "incident_id", in.ID)
		return
	}
	if err := s.notifier.IncidentCreated(ctx, c, in); err != nil {
		s.logger.Error(ctx, err, "notify: webhook failed", "incident_id", in.ID)
	}
}
