package support

import "context"

// Store is the persistence interface for customer and incident records.
// Find/Get methods return (nil, false, nil) when the record is absent;
// errors are reserved for store failures.
type Store interface {
	// CreateCustomer persists a new customer, assigning ID and CreatedAt on
	// the passed struct. Returns ErrDuplicateEmail when the email exists.
	CreateCustomer(ctx context.Context, c *Customer) error

	FindCustomerByEmail(ctx context.Context, email string) (*Customer, bool, error)
	FindCustomerByID(ctx context.Context, id int64) (*Customer, bool, error)

	// CreateIncident persists a new incident, assigning ID and CreatedAt.
	// The caller sets the derived priority fields before the call. Returns
	// ErrUnknownCustomer when CustomerID does not resolve.
	CreateIncident(ctx context.Context, in *Incident) error

	// FindIncident looks up an incident by the bulk-ingestion dedup key.
	FindIncident(ctx context.Context, customerID int64, date, description string) (*Incident, bool, error)
	GetIncident(ctx context.Context, id int64) (*Incident, bool, error)

	// ListCustomersByName returns all customers ordered by name, ascending,
	// lexicographic on the stored text.
	ListCustomersByName(ctx context.Context) ([]Customer, error)

	// ListIncidentsForCustomer returns a customer's incidents ordered by
	// creation time descending, most recent first.
	ListIncidentsForCustomer(ctx context.Context, customerID int64) ([]Incident, error)

	// SetIncidentStatus replaces an incident's status and returns the prior
	// value. Returns ErrNotFound when the id is absent.
	SetIncidentStatus(ctx context.Context, id int64, status string) (prior string, err error)

	Stats(ctx context.Context) (*Stats, error)

	// Batch runs fn against a store whose writes commit together when fn
	// returns nil and are discarded when it returns an error. The ingestion
	// pipeline uses one Batch per phase.
	Batch(ctx context.Context, fn func(Store) error) error
}
