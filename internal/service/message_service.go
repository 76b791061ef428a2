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

type SendMessageInput struct {
	Body      string
	OrderID   *uint64
	ProductID *uint64
}

type MessageService interface {
	Send(ctx context.Context, senderUID, recipientUID string, in SendMessageInput) (*model.Message, error)
	Conversation(ctx context.Context, uid, partnerUID string, limit int, beforeID uint64) ([]model.Message, error)
	MarkRead(ctx context.Context, uid, partnerUID string) (int64, error)
	Conversations(ctx context.Context, uid string) ([]repository.ConversationSummary, error)
}

type messageService struct {
	store  *repository.Store
	events EventPublisher
	log    *slog.Logger
}

func NewMessageService(store *repository.Store, events EventPublisher, logger *slog.Logger) MessageService {
	if events == nil {
		events = discardPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &messageService{store: store, events: events, log: logger}
}

func (s *messageService) Send(ctx context.Context, senderUID, recipientUID string, in SendMessageInput) (*model.Message, error) {
	if senderUID == "" {
		return nil, ErrForbidden
	}
	body := strings.TrimSpace(in.Body)
	if body == "" || len(body) > 4000 {
		return nil, fmt.Errorf("%w: message body must be 1-4000 characters", ErrInvalidInput)
	}
	if senderUID == recipientUID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidInput)
	}
	if _, err := s.store.Users().FindByUID(ctx, recipientUID); err != nil {
		return nil, storeErr(err)
	}
	if in.OrderID != nil {
		o, err := s.store.Orders().FindByID(ctx, *in.OrderID)
		if err != nil {
			return nil, storeErr(err)
		}
		if !o.IsParticipant(senderUID) || !o.IsParticipant(recipientUID) {
			return nil, ErrForbidden
		}
	}

	msg := &model.Message{
		SenderUID:    senderUID,
		RecipientUID: recipientUID,
		OrderID:      in.OrderID,
		ProductID:    in.ProductID,
		Body:         body,
	}
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, err
	}
	s.log.Info("message sent", "rid", reqctx.RID(ctx), "message_id", msg.ID)
	s.events.Publish(ctx, Event{
		Type:         model.NotificationNewMessage,
		MessageID:    msg.ID,
		ActorUID:     senderUID,
		RecipientUID: recipientUID,
		RID:          reqctx.RID(ctx),
	})
	return msg, nil
}

func (s *messageService) Conversation(ctx context.Context, uid, partnerUID string, limit int, beforeID uint64) ([]model.Message, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	return s.store.Messages().ListConversation(ctx, uid, partnerUID, limit, beforeID)
}

func (s *messageService) MarkRead(ctx context.Context, uid, partnerUID string) (int64, error) {
	if uid == "" {
		return 0, ErrForbidden
	}
	return s.store.Messages().MarkConversationRead(ctx, uid, partnerUID)
}

func (s *messageService) Conversations(ctx context.Context, uid string) ([]repository.ConversationSummary, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	return s.store.Messages().ListConversations(ctx, uid)
}
