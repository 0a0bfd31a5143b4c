package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	kind       string
	durable    bool
	declareErr error
	publishErr error
	messages   []published
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name)
	f.kind = kind
	f.durable = durable
	return f.declareErr
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAMQP(ch, "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultExchange}, ch.declared)
	assert.Equal(t, amqp.ExchangeTopic, ch.kind)
	assert.True(t, ch.durable)

	event := AnalysisEvent{
		ID:               "7b0c9c1e-0000-0000-0000-000000000001",
		ResumeURL:        "https://your-storage-service.com/resumes/cv.pdf",
		KeywordScore:     60,
		TFIDFScore:       36,
		SemanticScore:    0,
		SemanticDegraded: true,
		CompletedAt:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, ch.messages, 1)
	msg := ch.messages[0]
	assert.Equal(t, DefaultExchange, msg.exchange)
	assert.Equal(t, RoutingKey, msg.key)
	assert.Equal(t, "application/json", msg.msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.msg.DeliveryMode)
	assert.Equal(t, event.ID, msg.msg.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.msg.Body, &decoded))
	assert.Equal(t, float64(60), decoded["keywordScore"])
	assert.Equal(t, true, decoded["semanticDegraded"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPDeclareFailure(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}

	_, err := newAMQP(ch, "custom", nil)
	assert.ErrorContains(t, err, "access refused")
	assert.True(t, ch.closed)
}

func TestAMQPPublishFailure(t *testing.T) {
	ch := &fakeChannel{publishErr: amqp.ErrClosed}
	p, err := newAMQP(ch, "custom", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), AnalysisEvent{ID: "x"})
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestAMQPPublishCanceled(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAMQP(ch, "custom", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, AnalysisEvent{}), context.Canceled)
	assert.Empty(t, ch.messages)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), AnalysisEvent{}))
}
