package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/config"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox/registry"
)

func paymentRow(t *testing.T, eventType enums.OutboxEventType, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now(), Data: raw})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       env,
	}
}

func settled(tranID string) payloads.PaymentSettledEvent {
	return payloads.PaymentSettledEvent{PaymentID: uuid.New(), TranID: tranID, OrderNumber: "ORD-" + tranID, UID: "uid-1", Channel: "ipn"}
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher, maxAttempts int) *Service {
	t.Helper()
	eventRegistry, err := registry.NewEventRegistry(config.PubSubConfig{PaymentsTopic: "payments"})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: maxAttempts}},
		Logger:           logger.Nop(),
		DB:               fakeDB{},
		PubSub:           fakePubSubClient{},
		Repository:       repo,
		Registry:         eventRegistry,
		PublisherFactory: func(string) publisher { return pub },
	})
	require.NoError(t, err)
	return svc
}

func TestPublishKeysMessagesByTransaction(t *testing.T) {
	closed := payloads.PaymentClosedEvent{PaymentID: uuid.New(), TranID: "TXN-7", OrderNumber: "ORD-7", UID: "uid-1", Status: enums.PaymentStatusFailed, Channel: "fail"}
	repo := &fakeRepo{events: []models.OutboxEvent{paymentRow(t, enums.EventPaymentFailed, closed)}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, 5)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, pub.sent, 1)

	msg := pub.sent[0]
	assert.Equal(t, "TXN-7", msg.OrderingKey)
	assert.Equal(t, "TXN-7", msg.Attributes["tran_id"])
	assert.Equal(t, "ORD-7", msg.Attributes["order_number"])
	assert.Equal(t, string(enums.PaymentStatusFailed), msg.Attributes["payment_status"])
	assert.Equal(t, string(enums.EventPaymentFailed), msg.Attributes["event_type"])
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.published)
}

func TestPublishKeysCheckoutByPrimaryTransaction(t *testing.T) {
	row := paymentRow(t, enums.EventCheckoutInitiated, payloads.CheckoutInitiatedEvent{CartID: uuid.New(), UID: "uid-1", TranIDs: []string{"TXN-1", "TXN-2"}})
	row.AggregateType = enums.AggregateCheckout
	rolledBack := paymentRow(t, enums.EventCheckoutRolledBack, payloads.CheckoutRolledBackEvent{CartID: uuid.New(), UID: "uid-1", Reason: "down"})
	rolledBack.AggregateType = enums.AggregateCheckout
	pub := &fakePublisher{}
	svc := newTestService(t, &fakeRepo{events: []models.OutboxEvent{row, rolledBack}}, pub, 5)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, "TXN-1", pub.sent[0].OrderingKey)
	assert.Equal(t, "checkout:"+rolledBack.AggregateID.String(), pub.sent[1].OrderingKey)
	assert.Empty(t, pub.sent[1].Attributes["tran_id"])
}

func TestFailedKeyHoldsLaterEventsInBatch(t *testing.T) {
	first := paymentRow(t, enums.EventPaymentSettled, settled("TXN-1"))
	laterSameKey := paymentRow(t, enums.EventPaymentSettled, settled("TXN-1"))
	other := paymentRow(t, enums.EventPaymentSettled, settled("TXN-2"))
	repo := &fakeRepo{events: []models.OutboxEvent{first, laterSameKey, other}}
	pub := &fakePublisher{errs: map[int]error{0: errors.New("unavailable")}}
	svc := newTestService(t, repo, pub, 5)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{other.ID}, repo.published)
	assert.Equal(t, []string{"TXN-1"}, pub.resumed)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, "TXN-2", pub.sent[1].OrderingKey)
}

func TestUnresolvableEventIsParked(t *testing.T) {
	row := paymentRow(t, enums.EventPaymentSettled, settled("TXN-1"))
	row.AggregateType = enums.AggregateOrder
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, 5)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
	assert.Empty(t, pub.sent)
}

func TestEventParkedAtMaxAttempts(t *testing.T) {
	row := paymentRow(t, enums.EventPaymentSettled, settled("TXN-1"))
	row.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{errs: map[int]error{0: errors.New("unavailable")}}
	svc := newTestService(t, repo, pub, 2)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
	assert.Empty(t, repo.failed)
}

func TestEmptyBatchReportsIdle(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, 5)
	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}})
	require.EqualError(t, err, "logger is required")
}

func TestNextBackoffCaps(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond, time.Second, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, time.Second, maxBackoff))
	assert.Equal(t, 2*time.Second, nextBackoff(0, time.Second, maxBackoff))
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

// fakePublisher fails the publish calls listed in errs, by call index.
type fakePublisher struct {
	errs    map[int]error
	sent    []*gcppubsub.Message
	resumed []string
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	err := f.errs[len(f.sent)]
	f.sent = append(f.sent, msg)
	return fakePublishResult{err: err}
}

func (f *fakePublisher) Resume(key string) {
	f.resumed = append(f.resumed, key)
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}
