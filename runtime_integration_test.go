package lola_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola"
)

const tireManifest = `
instances:
  - interface_id: com.example.Tires
    instance_specifier: /My/Funk/ServiceName
    region_name: tires
    events:
      pressure:
        slot_count: 3
        max_subscribers: 1
        lossy: true
`

type pressureSample struct {
	Pressure float32
}

const wideTireManifest = `
instances:
  - interface_id: com.example.Tires
    instance_specifier: /My/Funk/ServiceName
    region_name: tires
    events:
      pressure:
        slot_count: 10
        max_subscribers: 1
        lossy: true
`

func newMockRuntime(t *testing.T) *lola.Runtime {
	t.Helper()
	return newMockRuntimeWithManifest(t, tireManifest)
}

func newMockRuntimeWithManifest(t *testing.T, manifestYAML string) *lola.Runtime {
	t.Helper()
	t.Setenv("LOLA_BASE_DIR", t.TempDir())

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o644))

	rt, err := lola.NewRuntimeBuilder().
		ManifestPath(path).
		WithBinding(lola.BindingMock).
		Create()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// TestSingleProducerSingleConsumerMockBinding mirrors spec scenario 1:
// a producer offers one event with slot count 3, a consumer subscribes
// with capacity 3, the producer sends more samples than the buffer can
// hold, and every non-empty reception yields strictly increasing
// pressure readings without ever exceeding the container's capacity.
func TestSingleProducerSingleConsumerMockBinding(t *testing.T) {
	rt := newMockRuntime(t)

	interfaceID := lola.InterfaceID("com.example.Tires")
	instanceSpecifier := lola.MustParseInstanceSpecifier("/My/Funk/ServiceName")

	producer, err := lola.Build[pressureSample](rt.ProducerBuilder(interfaceID, instanceSpecifier))
	require.NoError(t, err)

	offered, err := producer.Offer("pressure")
	require.NoError(t, err)
	defer func() { require.NoError(t, offered.Unoffer()) }()

	handles, err := rt.FindService(interfaceID).Find(lola.Specific(instanceSpecifier))
	require.NoError(t, err)
	require.Len(t, handles, 1)

	subscriber := lola.NewSubscriber[pressureSample](rt, handles[0], "pressure")
	subscription, err := subscriber.Subscribe(3)
	require.NoError(t, err)

	publisher := offered.Publisher("pressure")
	require.NotNil(t, publisher)

	for i := 0; i < 10; i++ {
		_, err := publisher.Send(pressureSample{Pressure: float32(i)})
		require.NoError(t, err)
	}

	var lastPressure float32 = -1
	for {
		n, err := subscription.TryReceive(3)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		require.LessOrEqual(t, subscription.Container().Len(), 3)
		for _, sample := range subscription.Container().Items() {
			require.Greater(t, sample.Value().Pressure, lastPressure)
			lastPressure = sample.Value().Pressure
		}
	}

	subscriber = subscription.Unsubscribe()
	require.NotNil(t, subscriber)
}

// TestTryReceiveTrimsAgainstMaxSamplesAcrossCalls exercises a capacity-10
// container subscribed with room for carryover content: two separate
// TryReceive(3) calls, each with more than 3 samples available, must each
// leave the container's length at or below the per-call bound, not just
// the container's larger fixed capacity.
func TestTryReceiveTrimsAgainstMaxSamplesAcrossCalls(t *testing.T) {
	rt := newMockRuntimeWithManifest(t, wideTireManifest)

	interfaceID := lola.InterfaceID("com.example.Tires")
	instanceSpecifier := lola.MustParseInstanceSpecifier("/My/Funk/ServiceName")

	producer, err := lola.Build[pressureSample](rt.ProducerBuilder(interfaceID, instanceSpecifier))
	require.NoError(t, err)

	offered, err := producer.Offer("pressure")
	require.NoError(t, err)
	defer func() { require.NoError(t, offered.Unoffer()) }()

	handles, err := rt.FindService(interfaceID).Find(lola.Specific(instanceSpecifier))
	require.NoError(t, err)
	require.Len(t, handles, 1)

	subscriber := lola.NewSubscriber[pressureSample](rt, handles[0], "pressure")
	subscription, err := subscriber.Subscribe(10)
	require.NoError(t, err)
	defer subscription.Unsubscribe()

	publisher := offered.Publisher("pressure")
	require.NotNil(t, publisher)

	for i := 0; i < 4; i++ {
		_, err := publisher.Send(pressureSample{Pressure: float32(i)})
		require.NoError(t, err)
	}
	n, err := subscription.TryReceive(3)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.LessOrEqual(t, subscription.Container().Len(), 3)

	for i := 4; i < 8; i++ {
		_, err := publisher.Send(pressureSample{Pressure: float32(i)})
		require.NoError(t, err)
	}
	n, err = subscription.TryReceive(3)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.LessOrEqual(t, subscription.Container().Len(), 3)
}

// TestSubscriptionStreamNextAndClose exercises Stream/Next/Close (spec
// §4.H.4): Next reports not-ready before anything is sent, then yields the
// sent value once a sample is available, and Close unsets the handler
// without panicking regardless of whether one was ever installed.
func TestSubscriptionStreamNextAndClose(t *testing.T) {
	rt := newMockRuntime(t)

	interfaceID := lola.InterfaceID("com.example.Tires")
	instanceSpecifier := lola.MustParseInstanceSpecifier("/My/Funk/ServiceName")

	producer, err := lola.Build[pressureSample](rt.ProducerBuilder(interfaceID, instanceSpecifier))
	require.NoError(t, err)

	offered, err := producer.Offer("pressure")
	require.NoError(t, err)
	defer func() { require.NoError(t, offered.Unoffer()) }()

	handles, err := rt.FindService(interfaceID).Find(lola.Specific(instanceSpecifier))
	require.NoError(t, err)
	require.Len(t, handles, 1)

	subscriber := lola.NewSubscriber[pressureSample](rt, handles[0], "pressure")
	subscription, err := subscriber.Subscribe(3)
	require.NoError(t, err)

	stream := subscription.Stream()
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, ok, err := stream.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	publisher := offered.Publisher("pressure")
	require.NotNil(t, publisher)
	_, err = publisher.Send(pressureSample{Pressure: 42})
	require.NoError(t, err)

	ref, ok, err := stream.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float32(42), ref.Value().Pressure)

	stream.Close()
}
