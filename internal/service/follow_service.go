package service

import (
	"context"
	"fmt"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
)

type FollowService interface {
	Follow(ctx context.Context, uid, farmerUID string) error
	Unfollow(ctx context.Context, uid, farmerUID string) error
	Following(ctx context.Context, uid string) ([]model.Follow, error)
}

type followService struct {
	store *repository.Store
}

func NewFollowService(store *repository.Store) FollowService {
	return &followService{store: store}
}

func (s *followService) Follow(ctx context.Context, uid, farmerUID string) error {
	if uid == "" {
		return ErrForbidden
	}
	if uid == farmerUID {
		return fmt.Errorf("%w: cannot follow yourself", ErrInvalidInput)
	}
	farmer, err := s.store.Users().FindByUID(ctx, farmerUID)
	if err != nil {
		return storeErr(err)
	}
	if farmer.Role != model.RoleFarmer {
		return fmt.Errorf("%w: only farmers can be followed", ErrInvalidInput)
	}
	return s.store.Follows().Follow(ctx, uid, farmerUID)
}

func (s *followService) Unfollow(ctx context.Context, uid, farmerUID string) error {
	n, err := s.store.Follows().Unfollow(ctx, uid, farmerUID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *followService) Following(ctx context.Context, uid string) ([]model.Follow, error) {
	return s.store.Follows().Following(ctx, uid)
}
