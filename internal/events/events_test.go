package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init("panic", "test")
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	recipient := uuid.New()
	e := New(InvoiceIssued, map[string]any{"number": "F2026-00001"}, recipient)

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, InvoiceIssued, e.Type)
	assert.Equal(t, []uuid.UUID{recipient}, e.Recipients)
	assert.False(t, e.OccurredAt.IsZero())
	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), e))
}

func TestDispatch(t *testing.T) {
	body, err := json.Marshal(New(MilestonePaid, map[string]any{"amount": 100.0}))
	require.NoError(t, err)

	var got Event
	res := dispatch(context.Background(), func(_ context.Context, e Event) error {
		got = e
		return nil
	}, body)
	assert.Equal(t, outcomeAck, res)
	assert.Equal(t, MilestonePaid, got.Type)
	assert.Equal(t, 100.0, got.Data["amount"])

	res = dispatch(context.Background(), func(context.Context, Event) error {
		return errors.New("smtp down")
	}, body)
	assert.Equal(t, outcomeRetry, res)

	res = dispatch(context.Background(), func(context.Context, Event) error {
		panic("boom")
	}, body)
	assert.Equal(t, outcomeRetry, res)

	res = dispatch(context.Background(), func(context.Context, Event) error { return nil }, []byte("{not json"))
	assert.Equal(t, outcomeDrop, res)
}
