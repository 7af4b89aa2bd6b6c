package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// UserService registers users and manages their roles.
type UserService struct {
	*base
}

// Create registers an attendee. Emails are unique, case-insensitively.
func (s *UserService) Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	email, name, err := normalizeUser(req.Email, req.Name)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		Role:      model.RoleAttendee,
		CreatedAt: s.clock.Now(),
	}
	err = s.update(ctx, "create user", func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Get returns a user.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	var u *model.User
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

// ChangeRole sets the role of user id. Admin only.
func (s *UserService) ChangeRole(ctx context.Context, actorID, id string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, model.Invalid("unknown role %q", role)
	}
	var u *model.User
	err := s.update(ctx, "change role", func(ctx context.Context, tx repository.Tx) error {
		if _, err := requireAdmin(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		u, err = tx.GetUser(ctx, id)
		if err != nil {
			return notFound(err, "user", id)
		}
		u.Role = role
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user role changed",
		zap.String("user_id", u.ID),
		zap.String("role", string(role)),
		zap.String("by", actorID),
	)
	return u, nil
}

// EnsureAdmin creates an admin with the given email, or promotes the user
// already registered under it.
func (s *UserService) EnsureAdmin(ctx context.Context, email, name string) (*model.User, error) {
	email, name, err := normalizeUser(email, name)
	if err != nil {
		return nil, err
	}
	var u *model.User
	err = s.update(ctx, "ensure admin", func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			existing.Role = model.RoleAdmin
			u = existing
			return tx.UpdateUser(ctx, u)
		case errors.Is(err, model.ErrNotFound):
			u = &model.User{
				ID:        uuid.New().String(),
				Email:     email,
				Name:      name,
				Role:      model.RoleAdmin,
				CreatedAt: s.clock.Now(),
			}
			return tx.InsertUser(ctx, u)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("admin ensured", zap.String("user_id", u.ID))
	return u, nil
}

func normalizeUser(email, name string) (string, string, error) {
	req := model.CreateUserRequest{
		Email: strings.TrimSpace(strings.ToLower(email)),
		Name:  strings.TrimSpace(name),
	}
	if err := validateRequest(req); err != nil {
		return "", "", err
	}
	return req.Email, req.Name, nil
}
