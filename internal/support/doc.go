// Package support provides the business boundary for the customer and
// incident record system. It defines the domain models, the Store interface
// (persistence), the error taxonomy, and the Service owning single-record
// operations, status transitions, and reporting.
package support
