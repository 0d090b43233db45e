package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tank-siting/internal/domain"
)

func TestMapMessage(t *testing.T) {
	now := time.Now()
	r := &Reader{}
	msg := kafkago.Message{
		Key:       []byte("session-1"),
		Value:     []byte(`{"session":"session-1","stage":"placements"}`),
		Topic:     "tank-stage-events",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "stage", Value: []byte("placements")},
		},
	}

	ev := r.mapMessage(msg)

	assert.Equal(t, []byte("session-1"), ev.Key)
	assert.JSONEq(t, `{"session":"session-1","stage":"placements"}`, string(ev.Value))
	assert.Equal(t, "tank-stage-events", ev.Topic)
	assert.Equal(t, 2, ev.Partition)
	assert.Equal(t, int64(42), ev.Offset)
	assert.Equal(t, now, ev.Timestamp)
	assert.Equal(t, "placements", ev.Headers["stage"])
	assert.NotNil(t, ev.Commit)
}

func TestHeaderMap(t *testing.T) {
	t.Run("empty headers map to nil", func(t *testing.T) {
		assert.Nil(t, headerMap(nil))
		assert.Nil(t, headerMap([]kafkago.Header{}))
	})

	t.Run("last duplicate wins", func(t *testing.T) {
		out := headerMap([]kafkago.Header{
			{Key: "stage", Value: []byte("boundary")},
			{Key: "stage", Value: []byte("placements")},
		})
		assert.Equal(t, "placements", out["stage"])
	})
}

func TestSerializeSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	snap := domain.SessionSnapshot{
		Session: "session-1",
		Tanks: []domain.TankRecord{
			{ID: 1, Name: "Tank A"},
			{ID: 2, Name: "Tank B"},
		},
		UpdatedAt: now,
	}

	msg, err := serializeSnapshot(snap)
	require.NoError(t, err)

	assert.Equal(t, []byte("session-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"session":"session-1"`)
	assert.Contains(t, string(msg.Value), `"name":"Tank A"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "tank_count", msg.Headers[0].Key)
	assert.Equal(t, []byte("2"), msg.Headers[0].Value)
	assert.Equal(t, "updated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}
