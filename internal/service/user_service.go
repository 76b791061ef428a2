package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
)

type ProfileInput struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	Role     model.UserRole
	FarmName string
	Bio      string
}

type PublicProfile struct {
	User      *model.User
	Followers int64
	Rating    repository.RatingSummary
}

type UserService interface {
	UpsertMe(ctx context.Context, uid, tokenEmail string, in ProfileInput) (*model.User, error)
	Get(ctx context.Context, uid string) (*model.User, error)
	Public(ctx context.Context, uid string) (*PublicProfile, error)
}

type userService struct {
	store *repository.Store
}

func NewUserService(store *repository.Store) UserService {
	return &userService{store: store}
}

// UpsertMe creates or updates the caller's profile. Admin can never be
// self-assigned and an existing admin keeps the role.
func (s *userService) UpsertMe(ctx context.Context, uid, tokenEmail string, in ProfileInput) (*model.User, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 120 {
		return nil, fmt.Errorf("%w: invalid name", ErrInvalidInput)
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = tokenEmail
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
	}
	if in.Role == model.RoleAdmin {
		return nil, fmt.Errorf("%w: admin role cannot be self-assigned", ErrForbidden)
	}

	existing, err := s.store.Users().FindByUID(ctx, uid)
	if err != nil && !repository.IsNotFound(err) {
		return nil, err
	}
	role := in.Role
	switch {
	case existing != nil && existing.IsAdmin():
		role = model.RoleAdmin
	case role == "" && existing != nil:
		role = existing.Role
	case role == "":
		role = model.RoleBuyer
	case role != model.RoleBuyer && role != model.RoleFarmer:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}

	u := &model.User{
		UID:      uid,
		Name:     name,
		Email:    email,
		Phone:    strings.TrimSpace(in.Phone),
		Address:  strings.TrimSpace(in.Address),
		Role:     role,
		FarmName: strings.TrimSpace(in.FarmName),
		Bio:      strings.TrimSpace(in.Bio),
	}
	if err := s.store.Users().Upsert(ctx, u); err != nil {
		return nil, storeErr(err)
	}
	return s.Get(ctx, uid)
}

func (s *userService) Get(ctx context.Context, uid string) (*model.User, error) {
	u, err := s.store.Users().FindByUID(ctx, uid)
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (s *userService) Public(ctx context.Context, uid string) (*PublicProfile, error) {
	u, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := &PublicProfile{User: u}
	if u.Role == model.RoleFarmer {
		if out.Followers, err = s.store.Follows().CountFollowers(ctx, uid); err != nil {
			return nil, err
		}
		if out.Rating, err = s.store.Reviews().SummaryForFarmer(ctx, uid); err != nil {
			return nil, err
		}
	}
	return out, nil
}
