package repository

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleWrite is returned when a conditional update matched no row because the
// row changed since it was read.
var ErrStaleWrite = errors.New("stale write")

// Store hands out repositories bound to one *gorm.DB, which is either the root
// connection or an open transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a Store bound to a single transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Users() UserRepository                 { return NewUserRepository(s.db) }
func (s *Store) Products() ProductRepository           { return NewProductRepository(s.db) }
func (s *Store) Orders() OrderRepository               { return NewOrderRepository(s.db) }
func (s *Store) Notifications() NotificationRepository { return NewNotificationRepository(s.db) }
func (s *Store) Preferences() PreferenceRepository     { return NewPreferenceRepository(s.db) }
func (s *Store) Wishlist() WishlistRepository          { return NewWishlistRepository(s.db) }
func (s *Store) Follows() FollowRepository             { return NewFollowRepository(s.db) }
func (s *Store) Reviews() ReviewRepository             { return NewReviewRepository(s.db) }
func (s *Store) Messages() MessageRepository           { return NewMessageRepository(s.db) }
func (s *Store) WebhookEvents() WebhookEventRepository { return NewWebhookEventRepository(s.db) }

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate reports unique-key violations from gorm's translated errors or raw MySQL errors.
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func forUpdate() clause.Expression {
	return clause.Locking{Strength: "UPDATE"}
}
