package slotengine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola/internal/shm"
	"github.com/ferrox-auto/lola/internal/slotengine"
)

func newTestEventBuffer(t *testing.T, slotCount, maxSubscribers uint32, lossy, dualControl bool) (*slotengine.EventBuffer, *shm.Manager) {
	t.Helper()
	mgr, err := shm.NewManager(t.TempDir())
	require.NoError(t, err)

	builder := shm.NewLayoutBuilder()
	layout, err := builder.AddEvent("left_tire", slotCount, maxSubscribers, 4, 4, slotCount, dualControl)
	require.NoError(t, err)

	region, err := mgr.OpenOrCreate("tires", builder.Build(), "com.example.Tires")
	require.NoError(t, err)

	eb := slotengine.New(region, layout, lossy, nil)
	eb.InitControlBlocks()
	return eb, mgr
}

func TestAllocatePublishAcquireRelease(t *testing.T) {
	eb, _ := newTestEventBuffer(t, 3, 1, false, false)

	a, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	seq, err := a.Publish()
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	participant, err := eb.AcquireSubscriberSlot()
	require.NoError(t, err)

	sample, err := eb.TryAcquireNext(participant, slotengine.QoSClassQM, 0)
	require.NoError(t, err)
	require.Equal(t, seq, sample.Sequence())

	_, err = eb.TryAcquireNext(participant, slotengine.QoSClassQM, sample.Sequence())
	require.ErrorIs(t, err, slotengine.ErrNoSample)

	sample.Release()
}

func TestAllocateFailsWhenFullAndNotLossy(t *testing.T) {
	eb, _ := newTestEventBuffer(t, 2, 1, false, false)

	a1, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	_, err = a1.Publish()
	require.NoError(t, err)

	a2, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	_, err = a2.Publish()
	require.NoError(t, err)

	participant, err := eb.AcquireSubscriberSlot()
	require.NoError(t, err)
	s1, err := eb.TryAcquireNext(participant, slotengine.QoSClassQM, 0)
	require.NoError(t, err)
	s2, err := eb.TryAcquireNext(participant, slotengine.QoSClassQM, s1.Sequence())
	require.NoError(t, err)

	_, err = eb.Allocate(slotengine.QoSClassQM)
	require.ErrorIs(t, err, slotengine.ErrAllocateFailed)

	s1.Release()
	s2.Release()
}

func TestLossyAllocateStealsOldestUnreferencedReadySlot(t *testing.T) {
	eb, _ := newTestEventBuffer(t, 2, 1, true, false)

	a1, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	seq1, err := a1.Publish()
	require.NoError(t, err)

	a2, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	_, err = a2.Publish()
	require.NoError(t, err)

	// Both slots Ready, unreferenced: a third allocate must steal the
	// oldest (seq1's slot) rather than fail.
	a3, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	seq3, err := a3.Publish()
	require.NoError(t, err)
	require.Greater(t, seq3, seq1)
}

func TestDropReturnsSlotToFreeWithoutPublishing(t *testing.T) {
	eb, _ := newTestEventBuffer(t, 1, 1, false, false)

	a, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	a.Drop()

	// The slot must be allocatable again immediately.
	a2, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	_, err = a2.Publish()
	require.NoError(t, err)
}

func TestIntoSampleGrantsProducerLocalReference(t *testing.T) {
	eb, _ := newTestEventBuffer(t, 2, 1, false, false)

	a, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	ref, err := a.IntoSample()
	require.NoError(t, err)
	require.Equal(t, uint64(1), ref.Sequence())
	ref.Release()
}

func TestRecoverReclaimsDeadParticipantsReferences(t *testing.T) {
	eb, _ := newTestEventBuffer(t, 1, 1, false, false)

	a, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	_, err = a.Publish()
	require.NoError(t, err)

	participant, err := eb.AcquireSubscriberSlot()
	require.NoError(t, err)
	_, err = eb.TryAcquireNext(participant, slotengine.QoSClassQM, 0)
	require.NoError(t, err)

	// Simulate the subscriber dying with the reference still held: the
	// slot cannot be reallocated until recovery runs.
	_, err = eb.Allocate(slotengine.QoSClassQM)
	require.ErrorIs(t, err, slotengine.ErrAllocateFailed)

	n := eb.Recover(participant, slotengine.QoSClassQM)
	require.Equal(t, 1, n)

	a2, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	_, err = a2.Publish()
	require.NoError(t, err)
}

func TestSequenceNumbersStrictlyIncreasing(t *testing.T) {
	eb, _ := newTestEventBuffer(t, 4, 1, false, false)

	var last uint64
	for i := 0; i < 4; i++ {
		a, err := eb.Allocate(slotengine.QoSClassQM)
		require.NoError(t, err)
		seq, err := a.Publish()
		require.NoError(t, err)
		require.Greater(t, seq, last)
		last = seq
	}
}
