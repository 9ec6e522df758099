package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())
	aggregate := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregatePayment,
			AggregateID:   aggregate,
			Actor:         SystemActor,
			Data:          map[string]string{"tran_id": "TXN-1"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, aggregate, rows[0].AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	require.Equal(t, 1, env.Version)
	require.Equal(t, "system", env.Actor.UID)
	require.JSONEq(t, `{"tran_id":"TXN-1"}`, string(env.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCheckoutInitiated,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsUnknownTypesAndMissingTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	conn := dbtest.Open(t)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "nope", AggregateType: enums.AggregateOrder})
	require.Error(t, err)
}

func TestRepositoryFailureAndTerminalMarks(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	row := models.OutboxEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, repo.Insert(conn, row))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id := rows[0].ID

	require.NoError(t, repo.MarkFailedTx(conn, id, errors.New("transient")))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Equal(t, 1, rows[0].AttemptCount)

	require.NoError(t, repo.MarkTerminalTx(conn, id, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestMarkPublishedHidesRow(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}))
	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDeletePublishedBeforeKeepsLiveRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	published := old.Add(time.Minute)

	rows := []models.OutboxEvent{
		{EventType: enums.EventPaymentSettled, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, PublishedAt: &published},
		{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, AttemptCount: 10},
		{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, AttemptCount: 2},
		{EventType: enums.EventCheckoutInitiated, AggregateType: enums.AggregateCheckout, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &published},
	}
	for _, row := range rows {
		require.NoError(t, repo.Insert(conn, row))
	}

	deleted, err := repo.DeletePublishedBefore(conn, time.Now().UTC().Add(-30*24*time.Hour), 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("event_type").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	require.Equal(t, enums.EventCheckoutInitiated, remaining[0].EventType)
	require.Equal(t, enums.EventOrderExpired, remaining[1].EventType)
}
