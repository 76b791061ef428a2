package repository

import (
	"context"
	"time"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"gorm.io/gorm"
)

// ConversationSummary is the latest message exchanged with one partner.
type ConversationSummary struct {
	PartnerUID  string
	LastMessage model.Message
	UnreadCount int64
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	ListConversation(ctx context.Context, uidA, uidB string, limit int, beforeID uint64) ([]model.Message, error)
	MarkConversationRead(ctx context.Context, recipientUID, senderUID string) (int64, error)
	ListConversations(ctx context.Context, uid string) ([]ConversationSummary, error)
	CountUnread(ctx context.Context, uid string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListConversation returns messages between two users, oldest first.
// A non-zero beforeID pages backwards from that message.
func (r *messageRepository) ListConversation(ctx context.Context, uidA, uidB string, limit int, beforeID uint64) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("(sender_uid = ? AND recipient_uid = ?) OR (sender_uid = ? AND recipient_uid = ?)", uidA, uidB, uidB, uidA)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []model.Message
	if err := q.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, recipientUID, senderUID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("recipient_uid = ? AND sender_uid = ? AND read_at IS NULL", recipientUID, senderUID).
		Update("read_at", time.Now().UTC())
	return res.RowsAffected, res.Error
}

func (r *messageRepository) ListConversations(ctx context.Context, uid string) ([]ConversationSummary, error) {
	var msgs []model.Message
	if err := r.db.WithContext(ctx).
		Where("sender_uid = ? OR recipient_uid = ?", uid, uid).
		Order("id DESC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}

	var unread []struct {
		SenderUID string
		Cnt       int64
	}
	if err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("sender_uid, COUNT(*) AS cnt").
		Where("recipient_uid = ? AND read_at IS NULL", uid).
		Group("sender_uid").
		Scan(&unread).Error; err != nil {
		return nil, err
	}
	unreadBy := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.SenderUID] = u.Cnt
	}

	seen := make(map[string]bool)
	out := make([]ConversationSummary, 0)
	for _, m := range msgs {
		partner := m.SenderUID
		if partner == uid {
			partner = m.RecipientUID
		}
		if seen[partner] {
			continue
		}
		seen[partner] = true
		out = append(out, ConversationSummary{
			PartnerUID:  partner,
			LastMessage: m,
			UnreadCount: unreadBy[partner],
		})
	}
	return out, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, uid string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("recipient_uid = ? AND read_at IS NULL", uid).
		Count(&cnt).Error
	return cnt, err
}
