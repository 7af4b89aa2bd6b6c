package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// VenueService manages venues.
type VenueService struct {
	*base
	guard *Guard
}

// Create stores an active venue. Organizers and admins only.
func (s *VenueService) Create(ctx context.Context, actorID string, req model.CreateVenueRequest) (*model.Venue, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	v := &model.Venue{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Address:   req.Address,
		Capacity:  req.Capacity,
		Status:    model.VenueActive,
		CreatedAt: s.clock.Now(),
	}
	err := s.update(ctx, "create venue", func(ctx context.Context, tx repository.Tx) error {
		u, err := actor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if u.Role != model.RoleOrganizer && !u.IsAdmin() {
			return model.Errorf(model.ErrNotAuthorized, "user %s may not create venues", u.ID)
		}
		return tx.InsertVenue(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("venue created", zap.String("venue_id", v.ID), zap.Int("capacity", v.Capacity))
	return v, nil
}

// Get returns a venue.
func (s *VenueService) Get(ctx context.Context, id string) (*model.Venue, error) {
	var v *model.Venue
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		v, err = tx.GetVenue(ctx, id)
		return err
	})
	if err != nil {
		return nil, notFound(err, "venue", id)
	}
	return v, nil
}

// Retire takes a venue out of service. Events already held there stay
// readable, so the row is kept and marked inactive. A venue with upcoming
// events that are neither cancelled nor completed cannot be retired.
func (s *VenueService) Retire(ctx context.Context, actorID, id string) (*model.Venue, error) {
	var v *model.Venue
	err := s.retry(ctx, "retire venue", func() error {
		return s.store.WithVenue(ctx, id, func(ctx context.Context, tx repository.Tx) error {
			if _, err := requireAdmin(ctx, tx, actorID); err != nil {
				return err
			}
			var err error
			v, err = tx.GetVenue(ctx, id)
			if err != nil {
				return err
			}
			if v.Status == model.VenueInactive {
				return nil
			}
			events, err := tx.ListVenueEvents(ctx, id)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			for _, ev := range events {
				if !ev.Status.IsTerminal() && ev.StartsAt.After(now) {
					return model.Errorf(model.ErrInvalidTransition,
						"venue %s still hosts upcoming event %s", id, ev.ID)
				}
			}
			v.Status = model.VenueInactive
			return tx.UpdateVenue(ctx, v)
		})
	})
	if err != nil {
		return nil, notFound(err, "venue", id)
	}
	s.log.Info("venue retired", zap.String("venue_id", id))
	return v, nil
}

// Availability reports the booked windows of the venue within window.
func (s *VenueService) Availability(ctx context.Context, id string, window model.TimeWindow, excludeEventID string) (*model.Availability, error) {
	return s.guard.Availability(ctx, id, window, excludeEventID)
}
