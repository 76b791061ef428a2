package service

import (
	"context"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
)

type WishlistEntry struct {
	Item    model.WishlistItem
	Product *model.Product
}

type WishlistService interface {
	Add(ctx context.Context, uid string, productID uint64) (*model.WishlistItem, error)
	Remove(ctx context.Context, uid string, productID uint64) error
	List(ctx context.Context, uid string) ([]WishlistEntry, error)
	SetAlert(ctx context.Context, uid string, productID uint64, enabled bool) error
}

type wishlistService struct {
	store *repository.Store
}

func NewWishlistService(store *repository.Store) WishlistService {
	return &wishlistService{store: store}
}

// Add records the product's current price; price drops are measured against it.
func (s *wishlistService) Add(ctx context.Context, uid string, productID uint64) (*model.WishlistItem, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	p, err := s.store.Products().FindByID(ctx, productID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !visible(p, Actor{UID: uid}) {
		return nil, ErrNotFound
	}
	item, err := s.store.Wishlist().Add(ctx, &model.WishlistItem{UserUID: uid, ProductID: p.ID, RecordedPrice: p.Price})
	if err != nil {
		return nil, storeErr(err)
	}
	return item, nil
}

func (s *wishlistService) Remove(ctx context.Context, uid string, productID uint64) error {
	n, err := s.store.Wishlist().Remove(ctx, uid, productID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *wishlistService) List(ctx context.Context, uid string) ([]WishlistEntry, error) {
	items, err := s.store.Wishlist().ListByUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]WishlistEntry, 0, len(items))
	for _, it := range items {
		p, _ := s.store.Products().FindByID(ctx, it.ProductID)
		out = append(out, WishlistEntry{Item: it, Product: p})
	}
	return out, nil
}

func (s *wishlistService) SetAlert(ctx context.Context, uid string, productID uint64, enabled bool) error {
	n, err := s.store.Wishlist().SetAlert(ctx, uid, productID, enabled)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
