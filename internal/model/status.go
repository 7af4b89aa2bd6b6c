package model

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventSoldOut   EventStatus = "sold_out"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

// eventTransitions lists the allowed next states for each event state.
var eventTransitions = map[EventStatus][]EventStatus{
	EventDraft:     {EventPublished, EventCancelled},
	EventPublished: {EventSoldOut, EventCancelled, EventCompleted},
	EventSoldOut:   {EventPublished, EventCancelled, EventCompleted},
	EventCancelled: {},
	EventCompleted: {},
}

// Valid reports whether s is a known event state.
func (s EventStatus) Valid() bool {
	_, ok := eventTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s EventStatus) IsTerminal() bool {
	return s == EventCancelled || s == EventCompleted
}

// OnSale reports whether tickets of an event in state s are in circulation.
func (s EventStatus) OnSale() bool {
	return s == EventPublished || s == EventSoldOut
}

// CanTransitionTo reports whether s → to is in the transition table.
func (s EventStatus) CanTransitionTo(to EventStatus) bool {
	for _, allowed := range eventTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the event to state to, or fails with
// ErrInvalidTransition leaving the event untouched.
func (e *Event) TransitionTo(to EventStatus, now time.Time) error {
	if !e.Status.CanTransitionTo(to) {
		return Errorf(ErrInvalidTransition, "event %s cannot move from %s to %s", e.ID, e.Status, to)
	}
	e.Status = to
	e.UpdatedAt = now
	return nil
}

// SyncCapacityStatus applies the automatic published ⇄ sold_out transitions
// after the attendee count changed. It is a no-op in every other state.
func (e *Event) SyncCapacityStatus(now time.Time) {
	switch {
	case e.Status == EventPublished && e.IsFull():
		_ = e.TransitionTo(EventSoldOut, now)
	case e.Status == EventSoldOut && !e.IsFull():
		_ = e.TransitionTo(EventPublished, now)
	}
}

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketCheckedIn TicketStatus = "checked_in"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

// ticketTransitions are the transitions a ticket holder or administrator may
// request directly.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketActive:    {TicketCheckedIn, TicketCancelled, TicketRefunded},
	TicketCheckedIn: {TicketRefunded},
	TicketCancelled: {},
	TicketRefunded:  {},
}

// cascadeTransitions are forced on tickets when their event is cancelled.
// Attendance does not protect a ticket from its event's cancellation.
var cascadeTransitions = map[TicketStatus][]TicketStatus{
	TicketActive:    {TicketCancelled, TicketRefunded},
	TicketCheckedIn: {TicketCancelled, TicketRefunded},
}

// Valid reports whether s is a known ticket state.
func (s TicketStatus) Valid() bool {
	_, ok := ticketTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketCancelled || s == TicketRefunded
}

// HoldsCapacity reports whether a ticket in state s counts toward its event's
// attendee count.
func (s TicketStatus) HoldsCapacity() bool {
	return s == TicketActive || s == TicketCheckedIn
}

// CanTransitionTo reports whether s → to is a direct transition.
func (s TicketStatus) CanTransitionTo(to TicketStatus) bool {
	return contains(ticketTransitions[s], to)
}

// CanCascadeTo reports whether an event cancellation may force s → to.
func (s TicketStatus) CanCascadeTo(to TicketStatus) bool {
	return contains(cascadeTransitions[s], to)
}

// TransitionTo moves the ticket to state to, or fails leaving it untouched.
// A second check-in is reported as ErrAlreadyCheckedIn.
func (t *Ticket) TransitionTo(to TicketStatus, now time.Time) error {
	if t.Status == TicketCheckedIn && to == TicketCheckedIn {
		return Errorf(ErrAlreadyCheckedIn, "ticket %s was checked in at %s", t.ID, formatTime(t.CheckedInAt))
	}
	if !t.Status.CanTransitionTo(to) {
		return Errorf(ErrInvalidTransition, "ticket %s cannot move from %s to %s", t.ID, t.Status, to)
	}
	t.apply(to, now)
	return nil
}

// Cascade moves the ticket to state to on behalf of an event cancellation.
func (t *Ticket) Cascade(to TicketStatus, now time.Time) error {
	if !t.Status.CanCascadeTo(to) {
		return Errorf(ErrInvalidTransition, "ticket %s cannot be cascaded from %s to %s", t.ID, t.Status, to)
	}
	t.apply(to, now)
	return nil
}

func (t *Ticket) apply(to TicketStatus, now time.Time) {
	t.Status = to
	t.UpdatedAt = now
	if to == TicketCheckedIn {
		at := now
		t.CheckedInAt = &at
	}
}

func contains(states []TicketStatus, s TicketStatus) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown time"
	}
	return t.UTC().Format(time.RFC3339)
}
