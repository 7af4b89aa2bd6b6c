// Package model defines the core domain types for the ticketing engine.
package model

import "time"

// Role is the authorization level of a user.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAttendee, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// User is anyone who buys tickets, organizes events or administers the system.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// VenueStatus is the operational state of a venue.
type VenueStatus string

const (
	VenueActive   VenueStatus = "active"
	VenueInactive VenueStatus = "inactive"
)

// Venue is a physical location that hosts events.
type Venue struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Address   string      `json:"address"`
	Capacity  int         `json:"capacity"`
	Status    VenueStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// Event is a scheduled occurrence at a venue with a bounded number of seats.
// Status and CurrentAttendeeCount change only through the lifecycle and the
// capacity ledger.
type Event struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	VenueID              string      `json:"venue_id"`
	OrganizerID          string      `json:"organizer_id"`
	StartsAt             time.Time   `json:"start_datetime"`
	EndsAt               time.Time   `json:"end_datetime"`
	BasePrice            int64       `json:"base_price"`
	MaxAttendees         int         `json:"max_attendees"`
	CurrentAttendeeCount int         `json:"current_attendee_count"`
	Status               EventStatus `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Remaining returns the number of available seats.
func (e *Event) Remaining() int {
	return e.MaxAttendees - e.CurrentAttendeeCount
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.CurrentAttendeeCount >= e.MaxAttendees
}

// HasStarted reports whether the event start time is at or before now.
func (e *Event) HasStarted(now time.Time) bool {
	return !now.Before(e.StartsAt)
}

// HasEnded reports whether the event end time is at or before now.
func (e *Event) HasEnded(now time.Time) bool {
	return !now.Before(e.EndsAt)
}

// Overlaps reports whether the half-open window [start, end) intersects the
// event's window. Touching boundaries do not overlap.
func (e *Event) Overlaps(start, end time.Time) bool {
	return e.StartsAt.Before(end) && start.Before(e.EndsAt)
}

// Ticket is one admission to an event. While active or checked in it holds
// exactly one unit of its event's capacity.
type Ticket struct {
	ID               string       `json:"id"`
	EventID          string       `json:"event_id"`
	UserID           string       `json:"user_id"`
	TicketType       string       `json:"ticket_type"`
	PricePaid        int64        `json:"price_paid"`
	PriceOverride    bool         `json:"price_override"`
	Status           TicketStatus `json:"status"`
	CapacityReleased bool         `json:"capacity_released"`
	CheckedInAt      *time.Time   `json:"checked_in_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// DefaultTicketType is used when a purchase does not name one.
const DefaultTicketType = "general"

// CreateUserRequest is the payload for self-service registration.
type CreateUserRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"required,max=200"`
}

// ChangeRoleRequest is the payload for an administrative role change.
type ChangeRoleRequest struct {
	Role Role `json:"role"`
}

// CreateVenueRequest is the payload for creating a venue.
type CreateVenueRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Address  string `json:"address" validate:"max=500"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=100000"`
}

// CreateEventRequest is the payload for creating a draft event.
type CreateEventRequest struct {
	Name         string    `json:"name" validate:"required,max=200"`
	Description  string    `json:"description" validate:"max=2000"`
	VenueID      string    `json:"venue_id" validate:"required"`
	StartsAt     time.Time `json:"start_datetime" validate:"required"`
	EndsAt       time.Time `json:"end_datetime" validate:"required"`
	BasePrice    int64     `json:"base_price" validate:"min=0"`
	MaxAttendees int       `json:"max_attendees" validate:"required,min=1,max=100000"`
}

// PurchaseRequest is the payload for buying a single ticket. A nil Price
// charges the event's base price.
type PurchaseRequest struct {
	EventID    string `json:"event_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	TicketType string `json:"ticket_type" validate:"max=50"`
	Price      *int64 `json:"price,omitempty" validate:"omitempty,min=0"`
	Override   bool   `json:"override,omitempty"`
}

// BulkPurchaseRequest is the payload for buying one ticket per listed user.
type BulkPurchaseRequest struct {
	UserIDs    []string `json:"user_ids"`
	TicketType string   `json:"ticket_type"`
}

// BulkCheckInRequest is the payload for checking in several tickets.
type BulkCheckInRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

// CancelEventRequest is the payload for cancelling an event.
type CancelEventRequest struct {
	IssueRefunds bool `json:"issue_refunds"`
}

// CancelResult reports the outcome of an event cancellation cascade.
type CancelResult struct {
	Event           *Event `json:"event"`
	AffectedTickets int    `json:"affected_tickets"`
}

// PurchaseOutcome summarises a single item of a bulk purchase.
type PurchaseOutcome struct {
	UserID string  `json:"user_id"`
	Ticket *Ticket `json:"ticket,omitempty"`
	Err    error   `json:"-"`
}

// CheckInOutcome summarises a single item of a bulk check-in.
type CheckInOutcome struct {
	TicketID string  `json:"ticket_id"`
	Ticket   *Ticket `json:"ticket,omitempty"`
	Err      error   `json:"-"`
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability is the answer to a venue scheduling query.
type Availability struct {
	VenueID   string       `json:"venue_id"`
	Window    TimeWindow   `json:"window"`
	Available bool         `json:"available"`
	Booked    []TimeWindow `json:"booked"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
