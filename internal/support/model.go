package support

import (
	"time"

	"github.com/linnemanlabs/soporte/internal/severity"
)

// MaxDescriptionLen bounds incident description length (matches the stored
// column width).
const MaxDescriptionLen = 1000

// Status values with a fixed statistics bucket. Incident status is free text;
// these are the three literals the stats report groups on, everything else is
// stored and listed but counted in no bucket.
const (
	StatusOpen       = "ABIERTA"
	StatusClosed     = "CERRADA"
	StatusInProgress = "EN PROCESO"
)

// Customer is immutable once created; the store assigns ID and CreatedAt.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Incident is a customer-reported issue. Date is an opaque label preserved as
// given, not a parsed calendar date. PriorityTier and PriorityScore are
// derived from Description exactly once at write time and never recomputed.
type Incident struct {
	ID            int64         `json:"id"`
	CustomerID    int64         `json:"customer_id"`
	Date          string        `json:"date"`
	Description   string        `json:"description"`
	Status        string        `json:"status"`
	PriorityTier  severity.Tier `json:"priority_tier"`
	PriorityScore float64       `json:"priority_score"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Stats is an exact point-in-time snapshot of the store.
type Stats struct {
	TotalCustomers int64        `json:"total_customers"`
	TotalIncidents int64        `json:"total_incidents"`
	ByTier         TierCounts   `json:"by_tier"`
	ByStatus       StatusCounts `json:"by_status"`
}

// TierCounts groups incidents by derived priority tier.
type TierCounts struct {
	Critical int64 `json:"critical"`
	High     int64 `json:"high"`
	Medium   int64 `json:"medium"`
	Normal   int64 `json:"normal"`
}

// StatusCounts groups incidents by the three fixed status buckets.
type StatusCounts struct {
	Open       int64 `json:"open"`
	Closed     int64 `json:"closed"`
	InProgress int64 `json:"in_progress"`
}
