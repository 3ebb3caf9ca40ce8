// Package memstore provides an in-memory implementation of support.Store.
// Suitable for dev and tests; selected when no database-url is configured.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/soporte/internal/severity"
	"github.com/linnemanlabs/soporte/internal/support"
)

// Store holds customer and incident records in memory. Ids are assigned
// sequentially, mirroring the SQL store's serial columns.
type Store struct {
	mu             sync.RWMutex
	customers      map[int64]support.Customer
	emails         map[string]int64 // email -> customer id (exact match)
	incidents      map[int64]support.Incident
	nextCustomerID int64
	nextIncidentID int64
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		customers: make(map[int64]support.Customer),
		emails:    make(map[string]int64),
		incidents: make(map[int64]support.Incident),
	}
}

// CreateCustomer assigns the next id and stores a copy of the customer.
func (s *Store) CreateCustomer(_ context.Context, c *support.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCustomerLocked(c)
}

// FindCustomerByEmail retrieves a customer by exact email match.
func (s *Store) FindCustomerByEmail(_ context.Context, email string) (*support.Customer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findCustomerByEmailLocked(email)
}

// FindCustomerByID retrieves a customer by id. Returns a copy.
func (s *Store) FindCustomerByID(_ context.Context, id int64) (*support.Customer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findCustomerByIDLocked(id)
}

// CreateIncident checks the customer reference, assigns the next id, and
// stores a copy of the incident.
func (s *Store) CreateIncident(_ context.Context, in *support.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createIncidentLocked(in)
}

// FindIncident looks up an incident by the (customer, date, description)
// dedup key.
func (s *Store) FindIncident(_ context.Context, customerID int64, date, description string) (*support.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findIncidentLocked(customerID, date, description)
}

// GetIncident retrieves an incident by id. Returns a copy.
func (s *Store) GetIncident(_ context.Context, id int64) (*support.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getIncidentLocked(id)
}

// ListCustomersByName returns all customers ordered by name ascending.
func (s *Store) ListCustomersByName(_ context.Context) ([]support.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCustomersByNameLocked()
}

// ListIncidentsForCustomer returns a customer's incidents, newest first.
func (s *Store) ListIncidentsForCustomer(_ context.Context, customerID int64) ([]support.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listIncidentsForCustomerLocked(customerID)
}

// SetIncidentStatus replaces the status of an incident and returns the
// prior value.
func (s *Store) SetIncidentStatus(_ context.Context, id int64, status string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setIncidentStatusLocked(id, status)
}

// Stats counts records at the moment of the call.
func (s *Store) Stats(_ context.Context) (*support.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

// Batch runs fn holding the write lock. On error the pre-batch state is
// restored, discarding every write fn made.
func (s *Store) Batch(_ context.Context, fn func(support.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapCustomers := maps.Clone(s.customers)
	snapEmails := maps.Clone(s.emails)
	snapIncidents := maps.Clone(s.incidents)
	snapNextCustomer := s.nextCustomerID
	snapNextIncident := s.nextIncidentID

	if err := fn(&batchStore{s: s}); err != nil {
		s.customers = snapCustomers
		s.emails = snapEmails
		s.incidents = snapIncidents
		s.nextCustomerID = snapNextCustomer
		s.nextIncidentID = snapNextIncident
		return err
	}
	return nil
}

// batchStore is the view handed to Batch callbacks. The parent's lock is
// already held, so it delegates to the unlocked internals.
type batchStore struct {
	s *Store
}

func (b *batchStore) CreateCustomer(_ context.Context, c *support.Customer) error {
	return b.s.createCustomerLocked(c)
}

func (b *batchStore) FindCustomerByEmail(_ context.Context, email string) (*support.Customer, bool, error) {
	return b.s.findCustomerByEmailLocked(email)
}

func (b *batchStore) FindCustomerByID(_ context.Context, id int64) (*support.Customer, bool, error) {
	return b.s.findCustomerByIDLocked(id)
}

func (b *batchStore) CreateIncident(_ context.Context, in *support.Incident) error {
	return b.s.createIncidentLocked(in)
}

func (b *batchStore) FindIncident(_ context.Context, customerID int64, date, description string) (*support.Incident, bool, error) {
	return b.s.findIncidentLocked(customerID, date, description)
}

func (b *batchStore) GetIncident(_ context.Context, id int64) (*support.Incident, bool, error) {
	return b.s.getIncidentLocked(id)
}

func (b *batchStore) ListCustomersByName(_ context.Context) ([]support.Customer, error) {
	return b.s.listCustomersByNameLocked()
}

func (b *batchStore) ListIncidentsForCustomer(_ context.Context, customerID int64) ([]support.Incident, error) {
	return b.s.listIncidentsForCustomerLocked(customerID)
}

func (b *batchStore) SetIncidentStatus(_ context.Context, id int64, status string) (string, error) {
	return b.s.setIncidentStatusLocked(id, status)
}

func (b *batchStore) Stats(_ context.Context) (*support.Stats, error) {
	return b.s.statsLocked()
}

// Batch inside a batch joins the enclosing scope; there is no nested
// atomicity.
func (b *batchStore) Batch(_ context.Context, fn func(support.Store) error) error {
	return fn(b)
}

// Unlocked internals. Callers hold s.mu.

func (s *Store) createCustomerLocked(c *support.Customer) error {
	if _, exists := s.emails[c.Email]; exists {
		return fmt.Errorf("customer %q: %w", c.Email, support.ErrDuplicateEmail)
	}
	s.nextCustomerID++
	c.ID = s.nextCustomerID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.customers[c.ID] = *c
	s.emails[c.Email] = c.ID
	return nil
}

func (s *Store) findCustomerByEmailLocked(email string) (*support.Customer, bool, error) {
	id, ok := s.emails[email]
	if !ok {
		return nil, false, nil
	}
	cp := s.customers[id]
	return &cp, true, nil
}

func (s *Store) findCustomerByIDLocked(id int64) (*support.Customer, bool, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, false, nil
	}
	cp := c
	return &cp, true, nil
}

func (s *Store) createIncidentLocked(in *support.Incident) error {
	if _, ok := s.customers[in.CustomerID]; !ok {
		return fmt.Errorf("customer %d: %w", in.CustomerID, support.ErrUnknownCustomer)
	}
	s.nextIncidentID++
	in.ID = s.nextIncidentID
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	s.incidents[in.ID] = *in
	return nil
}

func (s *Store) findIncidentLocked(customerID int64, date, description string) (*support.Incident, bool, error) {
	for _, in := range s.incidents {
		if in.CustomerID == customerID && in.Date == date && in.Description == description {
			cp := in
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) getIncidentLocked(id int64) (*support.Incident, bool, error) {
	in, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	cp := in
	return &cp, true, nil
}

func (s *Store) listCustomersByNameLocked() ([]support.Customer, error) {
	out := make([]support.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) listIncidentsForCustomerLocked(customerID int64) ([]support.Incident, error) {
	var out []support.Incident
	for _, in := range s.incidents {
		if in.CustomerID == customerID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) setIncidentStatusLocked(id int64, status string) (string, error) {
	in, ok := s.incidents[id]
	if !ok {
		return "", fmt.Errorf("incident %d: %w", id, support.ErrNotFound)
	}
	prior := in.Status
	in.Status = status
	s.incidents[id] = in
	return prior, nil
}

func (s *Store) statsLocked() (*support.Stats, error) {
	st := &support.Stats{
		TotalCustomers: int64(len(s.customers)),
		TotalIncidents: int64(len(s.incidents)),
	}
	for _, in := range s.incidents {
		switch in.PriorityTier {
		case severity.TierCritical:
			st.ByTier.Critical++
		case severity.TierHigh:
			st.ByTier.High++
		case severity.TierMedium:
			st.ByTier.Medium++
		case severity.TierNormal:
			st.ByTier.Normal++
		}
		switch in.Status {
		case support.StatusOpen:
			st.ByStatus.Open++
		case support.StatusClosed:
			st.ByStatus.Closed++
		case support.StatusInProgress:
			st.ByStatus.InProgress++
		}
	}
	return st, nil
}
