package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/reqctx"
	"github.com/shinyyama/farm-market-backend/internal/repository"
)

type ReviewService interface {
	Create(ctx context.Context, buyerUID string, orderID uint64, rating int, comment string) (*model.Review, error)
	ListByProduct(ctx context.Context, productID uint64, limit, offset int) ([]model.Review, repository.RatingSummary, error)
	ListByFarmer(ctx context.Context, farmerUID string, limit, offset int) ([]model.Review, repository.RatingSummary, error)
}

type reviewService struct {
	store  *repository.Store
	events EventPublisher
	log    *slog.Logger
}

func NewReviewService(store *repository.Store, events EventPublisher, logger *slog.Logger) ReviewService {
	if events == nil {
		events = discardPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &reviewService{store: store, events: events, log: logger}
}

// Create reviews a completed order; each order takes one review.
func (s *reviewService) Create(ctx context.Context, buyerUID string, orderID uint64, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	o, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err)
	}
	if o.BuyerUID != buyerUID {
		return nil, ErrForbidden
	}
	if o.Status != model.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: only completed orders can be reviewed", ErrInvalidState)
	}

	rv := &model.Review{
		OrderID:   o.ID,
		ProductID: o.ProductID,
		FarmerUID: o.FarmerUID,
		BuyerUID:  buyerUID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
	}
	if err := s.store.Reviews().Create(ctx, rv); err != nil {
		if repository.IsDuplicate(err) {
			return nil, fmt.Errorf("%w: order already reviewed", ErrConflict)
		}
		return nil, err
	}
	s.log.Info("review created", "rid", reqctx.RID(ctx), "review_id", rv.ID, "order_id", o.ID)
	s.events.Publish(ctx, Event{
		Type:     model.NotificationNewReview,
		OrderID:  o.ID,
		ReviewID: rv.ID,
		ActorUID: buyerUID,
		RID:      reqctx.RID(ctx),
	})
	return rv, nil
}

func (s *reviewService) ListByProduct(ctx context.Context, productID uint64, limit, offset int) ([]model.Review, repository.RatingSummary, error) {
	list, err := s.store.Reviews().ListByProduct(ctx, productID, limit, offset)
	if err != nil {
		return nil, repository.RatingSummary{}, err
	}
	sum, err := s.store.Reviews().SummaryForProduct(ctx, productID)
	return list, sum, err
}

func (s *reviewService) ListByFarmer(ctx context.Context, farmerUID string, limit, offset int) ([]model.Review, repository.RatingSummary, error) {
	list, err := s.store.Reviews().ListByFarmer(ctx, farmerUID, limit, offset)
	if err != nil {
		return nil, repository.RatingSummary{}, err
	}
	sum, err := s.store.Reviews().SummaryForFarmer(ctx, farmerUID)
	return list, sum, err
}
