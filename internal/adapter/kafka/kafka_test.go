package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafkago.Message
	err  error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2019, 9, 19, 16, 0, 0, 0, time.UTC)
	event := domain.NewEvent(domain.EventArtifactCopied, "10170203", "2019-09-19 16:00:00", "/out/NWM.tif", now)

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("10170203"), msg.Key)
	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event, decoded)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("artifact_copied"), msg.Headers[0].Value)
	assert.Equal(t, "event_id", msg.Headers[1].Key)
	assert.Equal(t, []byte(event.ID), msg.Headers[1].Value)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestWriter_Publish(t *testing.T) {
	rec := &recordingWriter{}
	w := &Writer{writer: rec, logger: observability.NopLogger()}

	require.NoError(t, w.Publish(context.Background()))
	assert.Empty(t, rec.msgs, "no events, no write")

	at := time.Now()
	require.NoError(t, w.Publish(context.Background(),
		domain.NewEvent(domain.EventBenchmarkDownloaded, "1", "", "a.tif", at),
		domain.NewEvent(domain.EventArtifactMissing, "1", "2019-09-19", "", at),
	))
	assert.Len(t, rec.msgs, 2)
}

func TestWriter_PublishError(t *testing.T) {
	w := &Writer{writer: &recordingWriter{err: errors.New("broker down")}, logger: observability.NopLogger()}
	err := w.Publish(context.Background(), domain.NewEvent(domain.EventArtifactMissing, "1", "", "", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewEvent_StableID(t *testing.T) {
	a := domain.NewEvent(domain.EventArtifactGenerated, "1", "2019-09-19", "/p", time.Now())
	b := domain.NewEvent(domain.EventArtifactGenerated, "1", "2019-09-19", "/p", time.Now().Add(time.Hour))
	c := domain.NewEvent(domain.EventArtifactCopied, "1", "2019-09-19", "/p", time.Now())
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Len(t, a.ID, 16)
}
