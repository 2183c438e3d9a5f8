package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	xerrors "OnchainAgent/internal/errors"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		RunID:    "run-1",
		ThreadID: "onchain-agent",
		Event:    "agent",
		Data:     "Balance: 1.2 ETH",
		At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemoryPublisher(t *testing.T) {
	pub := NewMemoryPublisher()
	require.NoError(t, pub.Publish(context.Background(), sampleMessage()))
	assert.Len(t, pub.Messages(), 1)

	require.NoError(t, pub.Close())
	err := pub.Publish(context.Background(), sampleMessage())
	assert.Equal(t, xerrors.CodePublishFailure, xerrors.CodeOf(err))
}

func TestRedisPublisherPublishesJSON(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	pub, err := NewRedisPublisher(client, "", client.Close)
	require.NoError(t, err)
	assert.Equal(t, DefaultRedisChannel, pub.Channel())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := client.Subscribe(ctx, DefaultRedisChannel)
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, sampleMessage()))

	received, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(received.Payload), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "onchain-agent", decoded["thread_id"])
	assert.Equal(t, "agent", decoded["event"])
	assert.Equal(t, "Balance: 1.2 ETH", decoded["data"])
	assert.Equal(t, "2026-01-02T03:04:05Z", decoded["at"])

	require.NoError(t, sub.Close())
	require.NoError(t, pub.Close())
}

func TestRedisPublisherFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	pub, err := NewRedisPublisher(client, "events", nil)
	require.NoError(t, err)

	srv.SetError("LOADING")
	err = pub.Publish(context.Background(), sampleMessage())
	assert.Equal(t, xerrors.CodePublishFailure, xerrors.CodeOf(err))
	assert.NoError(t, pub.Close())
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestRabbitMQPublisher(t *testing.T) {
	ch := &fakeChannel{}
	pub := &RabbitMQPublisher{ch: ch, queue: DefaultRabbitMQQueue}

	require.NoError(t, pub.Publish(context.Background(), sampleMessage()))
	require.Len(t, ch.published, 1)
	assert.Equal(t, DefaultRabbitMQQueue, ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, "run-1", ch.published[0].MessageId)
	assert.Contains(t, string(ch.published[0].Body), `"event":"agent"`)

	ch.err = errors.New("channel closed")
	err := pub.Publish(context.Background(), sampleMessage())
	assert.Equal(t, xerrors.CodePublishFailure, xerrors.CodeOf(err))

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
	err = pub.Publish(context.Background(), sampleMessage())
	assert.Equal(t, xerrors.CodePublishFailure, xerrors.CodeOf(err))
}

func TestNewRabbitMQPublisherRequiresURL(t *testing.T) {
	_, err := NewRabbitMQPublisher(RabbitMQConfig{})
	assert.Error(t, err)
}
