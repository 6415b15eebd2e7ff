//go:build integration

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"

	"qualtrack/pkg/platform/audit/store/postgres"
)

func TestRelayAgainstRedpanda(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	producer, err := NewClient([]string{broker})
	require.NoError(t, err)
	defer producer.Close()

	const topic = "qualtrack.audit.test"
	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1))
	// Second call sees TopicAlreadyExists and succeeds.
	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1))

	src := &fakeSource{pending: []postgres.OutboxEntry{entry("holder-a"), entry("holder-b")}}
	n, err := New(src, producer, topic).RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, src.published, 2)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var keys []string
	for len(keys) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			keys = append(keys, string(r.Key))
			assert.Equal(t, "record_reviewed", headerValue(r, "event_type"))
		})
	}
	assert.ElementsMatch(t, []string{"holder-a", "holder-b"}, keys)
}

func headerValue(r *kgo.Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
