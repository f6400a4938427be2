package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/messaging"
	"github.com/serroba/qrlinks/internal/scans"
	"github.com/serroba/qrlinks/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRunnable struct {
	topic       string
	started     bool
	shutdown    bool
	startErr    error
	shutdownErr error
	order       *[]string
}

func (m *mockRunnable) Topic() string { return m.topic }

func (m *mockRunnable) Start(_ context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.started = true

	return nil
}

func (m *mockRunnable) Shutdown() error {
	m.shutdown = true

	if m.order != nil {
		*m.order = append(*m.order, m.topic)
	}

	return m.shutdownErr
}

func TestConsumerGroup_Start(t *testing.T) {
	t.Run("starts all consumers", func(t *testing.T) {
		group := messaging.NewConsumerGroup(newMockSubscriber(), zap.NewNop())
		scanConsumer := &mockRunnable{topic: scans.TopicScanRecorded}
		other := &mockRunnable{topic: "link.deleted"}

		group.Add(scanConsumer)
		group.Add(other)

		require.NoError(t, group.Start(context.Background()))
		assert.True(t, scanConsumer.started)
		assert.True(t, other.started)
		assert.Equal(t, []string{scans.TopicScanRecorded, "link.deleted"}, group.Topics())
	})

	t.Run("stops started consumers when one fails", func(t *testing.T) {
		group := messaging.NewConsumerGroup(newMockSubscriber(), zap.NewNop())
		scanConsumer := &mockRunnable{topic: scans.TopicScanRecorded}
		broken := &mockRunnable{topic: "link.deleted", startErr: errors.New("stream unavailable")}

		group.Add(scanConsumer)
		group.Add(broken)

		err := group.Start(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "start consumer for link.deleted")
		assert.True(t, scanConsumer.shutdown)
		assert.False(t, broken.started)
	})
}

func TestConsumerGroup_Shutdown(t *testing.T) {
	t.Run("stops consumers in reverse order and closes the subscriber", func(t *testing.T) {
		sub := newMockSubscriber()
		group := messaging.NewConsumerGroup(sub, zap.NewNop())

		var order []string

		group.Add(&mockRunnable{topic: "first", order: &order})
		group.Add(&mockRunnable{topic: "second", order: &order})
		require.NoError(t, group.Start(context.Background()))

		require.NoError(t, group.Shutdown())
		assert.Equal(t, []string{"second", "first"}, order)
		assert.True(t, sub.closed)
	})

	t.Run("reports every error but stops all", func(t *testing.T) {
		group := messaging.NewConsumerGroup(newMockSubscriber(), zap.NewNop())
		first := &mockRunnable{topic: "first", shutdownErr: errors.New("shutdown error 1")}
		second := &mockRunnable{topic: "second", shutdownErr: errors.New("shutdown error 2")}

		group.Add(first)
		group.Add(second)
		require.NoError(t, group.Start(context.Background()))

		err := group.Shutdown()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "shutdown error 1")
		assert.Contains(t, err.Error(), "shutdown error 2")
		assert.True(t, first.shutdown)
		assert.True(t, second.shutdown)
	})
}

func TestConsumerGroup_PersistsStreamedScans(t *testing.T) {
	ctx := context.Background()
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})

	memStore := store.NewMemoryStore()
	link := &links.DynamicLink{
		ID:             uuid.New(),
		Code:           "abc12345",
		DestinationURL: "https://example.com/menu",
		OwnerID:        "owner-1",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, memStore.Create(ctx, link))

	metrics := scans.NewMetrics(prometheus.NewRegistry())
	group := messaging.NewConsumerGroup(pubSub, zap.NewNop())
	group.Add(messaging.NewConsumer(
		pubSub,
		scans.TopicScanRecorded,
		scans.PersistHandler(memStore, metrics, zap.NewNop()),
		zap.NewNop(),
	))
	require.NoError(t, group.Start(ctx))

	t.Cleanup(func() { _ = group.Shutdown() })

	recorder := scans.NewStreamRecorder(messaging.NewPublishFunc[scans.Event](pubSub, scans.TopicScanRecorded))

	// The first scan belongs to a link deleted before the consumer ran. It
	// must be dropped rather than redelivered ahead of the valid scan.
	require.NoError(t, recorder.Record(ctx, &scans.Event{ID: uuid.New(), LinkID: uuid.New(), Code: "gone0000"}))

	valid := &scans.Event{ID: uuid.New(), LinkID: link.ID, Code: string(link.Code), Device: "mobile"}
	require.NoError(t, recorder.Record(ctx, valid))
	require.NoError(t, recorder.Record(ctx, valid))

	require.Eventually(t, func() bool {
		events, err := memStore.ListScans(ctx, link.ID)

		return err == nil && len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Failures) == 1
	}, time.Second, 10*time.Millisecond)
}
