package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/payment"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shinyyama/farm-market-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type pushed struct {
	UserUID string
	Event   PushEvent
}

type fakePusher struct {
	mu   sync.Mutex
	sent []pushed
}

func (p *fakePusher) PushTo(uid string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, _ := v.(PushEvent)
	p.sent = append(p.sent, pushed{UserUID: uid, Event: ev})
}

func (p *fakePusher) to(uid string) []PushEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PushEvent
	for _, s := range p.sent {
		if s.UserUID == uid {
			out = append(out, s.Event)
		}
	}
	return out
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) SendNotification(_ context.Context, to string, _ *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *fakeMailer) count(to string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s == to {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	mu      sync.Mutex
	created int
	intents map[string]*payment.Intent
	event   *payment.WebhookEvent
	failNew bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: map[string]*payment.Intent{}}
}

func (f *fakeProvider) CreateIntent(_ context.Context, p payment.CreateParams) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNew {
		return nil, errors.New("provider down")
	}
	f.created++
	in := &payment.Intent{ID: "pi_" + p.IdempotencyKey[:8], ClientSecret: "secret_" + p.IdempotencyKey[:8], Status: model.PaymentStatusPending}
	f.intents[in.ID] = in
	return in, nil
}

func (f *fakeProvider) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return nil, errors.New("no such intent")
	}
	cp := *in
	return &cp, nil
}

func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if signature != "valid" || f.event == nil {
		return nil, payment.ErrInvalidSignature
	}
	return f.event, nil
}

func (f *fakeProvider) setStatus(id string, st model.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = st
	f.intents[id].Method = "card"
}

type fakeImages struct{ objects []string }

func (f *fakeImages) Upload(_ context.Context, object, _ string, r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.objects = append(f.objects, object)
	return "https://storage.example/" + object, nil
}

type testEnv struct {
	store    *repository.Store
	pusher   *fakePusher
	mailer   *fakeMailer
	provider *fakeProvider
	images   *fakeImages
	notify   NotificationService
	orders   OrderService
	payments PaymentService
	products ProductService
	reviews  ReviewService
	messages MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    repository.NewStore(testutil.NewDB(t)),
		pusher:   &fakePusher{},
		mailer:   &fakeMailer{},
		provider: newFakeProvider(),
		images:   &fakeImages{},
	}
	env.notify = NewNotificationService(env.store, env.pusher, env.mailer, nil, "https://farm.example")
	pub := SyncPublisher{Handler: env.notify}
	env.orders = NewOrderService(env.store, pub, nil, OrderOptions{})
	env.payments = NewPaymentService(env.store, env.provider, pub, nil, "usd", 0)
	env.products = NewProductService(env.store, env.images, pub, nil, false)
	env.reviews = NewReviewService(env.store, pub, nil)
	env.messages = NewMessageService(env.store, pub, nil)
	return env
}

func (e *testEnv) user(t *testing.T, uid string, role model.UserRole) Actor {
	t.Helper()
	require.NoError(t, e.store.Users().Upsert(context.Background(), &model.User{
		UID: uid, Name: uid, Email: uid + "@example.com", Role: role,
	}))
	return Actor{UID: uid, Role: role}
}

func (e *testEnv) product(t *testing.T, farmerUID, price string, qty int) *model.Product {
	t.Helper()
	p := &model.Product{
		FarmerUID: farmerUID,
		Name:      "Carrots",
		Unit:      "kg",
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
		Status:    model.ProductStatusActive,
		Approved:  true,
	}
	require.NoError(t, e.store.Products().Create(context.Background(), p))
	return p
}

func (e *testEnv) stock(t *testing.T, id uint64) (int, model.ProductStatus) {
	t.Helper()
	p, err := e.store.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity, p.Status
}

func (e *testEnv) notifications(t *testing.T, uid string) []model.Notification {
	t.Helper()
	list, err := e.store.Notifications().ListByUser(context.Background(), uid, false, 100, 0)
	require.NoError(t, err)
	return list
}

func countType(list []model.Notification, typ model.NotificationType) int {
	n := 0
	for _, x := range list {
		if x.Type == typ {
			n++
		}
	}
	return n
}
