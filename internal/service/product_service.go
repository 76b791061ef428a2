package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/reqctx"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shopspring/decimal"
)

// ImageStore uploads product images and returns their public URL.
type ImageStore interface {
	Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error)
}

type ProductInput struct {
	Name        string
	Description string
	Category    string
	Unit        string
	Price       decimal.Decimal
	Quantity    int
	Organic     bool
	HarvestDate *time.Time
	Location    string
}

// ProductPatch updates the non-nil fields.
type ProductPatch struct {
	Name        *string
	Description *string
	Category    *string
	Unit        *string
	Price       *decimal.Decimal
	Quantity    *int
	Organic     *bool
	HarvestDate *time.Time
	Location    *string
	Active      *bool
}

type ProductService interface {
	Create(ctx context.Context, actor Actor, in ProductInput) (*model.Product, error)
	Update(ctx context.Context, actor Actor, id uint64, patch ProductPatch) (*model.Product, error)
	Delete(ctx context.Context, actor Actor, id uint64) error
	Get(ctx context.Context, viewer Actor, id uint64) (*model.Product, error)
	List(ctx context.Context, viewer Actor, f repository.ProductFilter) ([]model.Product, int64, error)
	Approve(ctx context.Context, actor Actor, id uint64) (*model.Product, error)
	UploadImage(ctx context.Context, actor Actor, id uint64, filename, contentType string, r io.Reader) (*model.Product, error)
}

type productService struct {
	store           *repository.Store
	images          ImageStore
	events          EventPublisher
	log             *slog.Logger
	requireApproval bool
}

func NewProductService(store *repository.Store, images ImageStore, events EventPublisher, logger *slog.Logger, requireApproval bool) ProductService {
	if events == nil {
		events = discardPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &productService{store: store, images: images, events: events, log: logger, requireApproval: requireApproval}
}

func (s *productService) Create(ctx context.Context, actor Actor, in ProductInput) (*model.Product, error) {
	if actor.Role != model.RoleFarmer && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only farmers can list products", ErrForbidden)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 160 {
		return nil, fmt.Errorf("%w: invalid name", ErrInvalidInput)
	}
	if !in.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if in.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "unit"
	}

	p := &model.Product{
		FarmerUID:   actor.UID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Unit:        unit,
		Price:       in.Price.Round(2),
		Quantity:    in.Quantity,
		Status:      model.ProductStatusActive,
		Approved:    !s.requireApproval,
		Organic:     in.Organic,
		HarvestDate: in.HarvestDate,
		Location:    strings.TrimSpace(in.Location),
	}
	p.Status = p.StockStatus(p.Quantity)
	if err := s.store.Products().Create(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("product created", "rid", reqctx.RID(ctx), "product_id", p.ID, "farmer_uid", p.FarmerUID, "approved", p.Approved)
	if p.Approved {
		s.publish(ctx, Event{Type: model.NotificationNewProduct, ProductID: p.ID, ActorUID: actor.UID})
	}
	return p, nil
}

func (s *productService) Update(ctx context.Context, actor Actor, id uint64, patch ProductPatch) (*model.Product, error) {
	var (
		out      *model.Product
		oldPrice decimal.Decimal
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		p, err := tx.Products().FindByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if p.FarmerUID != actor.UID && !actor.IsAdmin() {
			return ErrForbidden
		}
		oldPrice = p.Price

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" || len(name) > 160 {
				return fmt.Errorf("%w: invalid name", ErrInvalidInput)
			}
			p.Name = name
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Category != nil {
			p.Category = strings.TrimSpace(*patch.Category)
		}
		if patch.Unit != nil && strings.TrimSpace(*patch.Unit) != "" {
			p.Unit = strings.TrimSpace(*patch.Unit)
		}
		if patch.Price != nil {
			if !patch.Price.IsPositive() {
				return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
			}
			p.Price = patch.Price.Round(2)
		}
		if patch.Quantity != nil {
			if *patch.Quantity < 0 {
				return fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
			}
			p.Quantity = *patch.Quantity
		}
		if patch.Organic != nil {
			p.Organic = *patch.Organic
		}
		if patch.HarvestDate != nil {
			p.HarvestDate = patch.HarvestDate
		}
		if patch.Location != nil {
			p.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.Active != nil {
			if *patch.Active {
				p.Status = model.ProductStatusActive
			} else {
				p.Status = model.ProductStatusInactive
			}
		}
		p.Status = p.StockStatus(p.Quantity)

		if err := tx.Products().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Price.LessThan(oldPrice) {
		s.log.Info("product price lowered", "rid", reqctx.RID(ctx), "product_id", out.ID, "old", oldPrice.StringFixed(2), "new", out.Price.StringFixed(2))
		s.publish(ctx, Event{Type: model.NotificationPriceDrop, ProductID: out.ID, ActorUID: actor.UID, NewPrice: out.Price})
	}
	return out, nil
}

// Delete removes a listing that no order references; referenced listings are
// deactivated so order history stays intact.
func (s *productService) Delete(ctx context.Context, actor Actor, id uint64) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		p, err := tx.Products().FindByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if p.FarmerUID != actor.UID && !actor.IsAdmin() {
			return ErrForbidden
		}
		n, err := tx.Orders().CountByProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			p.Status = model.ProductStatusInactive
			return tx.Products().Update(ctx, p)
		}
		return tx.Products().Delete(ctx, p.ID)
	})
}

func (s *productService) Get(ctx context.Context, viewer Actor, id uint64) (*model.Product, error) {
	p, err := s.store.Products().FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if !visible(p, viewer) {
		return nil, ErrNotFound
	}
	return p, nil
}

func visible(p *model.Product, viewer Actor) bool {
	if p.Approved && p.Status != model.ProductStatusInactive {
		return true
	}
	return viewer.UID == p.FarmerUID || viewer.IsAdmin()
}

func (s *productService) List(ctx context.Context, viewer Actor, f repository.ProductFilter) ([]model.Product, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	// hidden listings only for the farmer's own view or admins
	if f.IncludeHidden && !viewer.IsAdmin() && (viewer.UID == "" || f.FarmerUID != viewer.UID) {
		f.IncludeHidden = false
	}
	return s.store.Products().List(ctx, f)
}

func (s *productService) Approve(ctx context.Context, actor Actor, id uint64) (*model.Product, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	var (
		out     *model.Product
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		p, err := tx.Products().FindByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		out = p
		if p.Approved {
			return nil
		}
		p.Approved = true
		changed = true
		return tx.Products().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if changed && out.Status != model.ProductStatusInactive {
		s.publish(ctx, Event{Type: model.NotificationNewProduct, ProductID: out.ID, ActorUID: out.FarmerUID})
	}
	return out, nil
}

func (s *productService) UploadImage(ctx context.Context, actor Actor, id uint64, filename, contentType string, r io.Reader) (*model.Product, error) {
	if s.images == nil {
		return nil, fmt.Errorf("%w: image storage not configured", ErrInvalidState)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: only images are accepted", ErrInvalidInput)
	}
	p, err := s.store.Products().FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if p.FarmerUID != actor.UID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	object := fmt.Sprintf("products/%d/%d%s", p.ID, time.Now().UnixNano(), strings.ToLower(path.Ext(filename)))
	url, err := s.images.Upload(ctx, object, contentType, r)
	if err != nil {
		s.log.Error("image upload failed", "rid", reqctx.RID(ctx), "product_id", p.ID, "err", err)
		return nil, err
	}
	if err := s.store.Products().SetImageURL(ctx, p.ID, url); err != nil {
		return nil, err
	}
	out, err := s.store.Products().FindByID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *productService) publish(ctx context.Context, ev Event) {
	ev.RID = reqctx.RID(ctx)
	s.events.Publish(ctx, ev)
}
