package lola

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola/internal/shm"
	"github.com/ferrox-auto/lola/internal/slotengine"
)

// TestMustBeUnofferedEnforcesProgramErrorContract white-box tests the
// program-error contract a finalizer enforces on a dropped-without-Unoffer
// OfferedProducer (spec §4.F/§7), without relying on GC timing: calling
// mustBeUnoffered directly exercises exactly what the finalizer installed
// by Producer.Offer would run.
func TestMustBeUnofferedEnforcesProgramErrorContract(t *testing.T) {
	op := &OfferedProducer[int]{interfaceID: "com.example.Test", instanceSpecifier: MustParseInstanceSpecifier("/Test")}
	require.Panics(t, func() { op.mustBeUnoffered() })

	op.unoffered = true
	require.NotPanics(t, func() { op.mustBeUnoffered() })
}

// TestLivenessSweepRecoversDeadParticipant exercises the wiring between
// Subscribe's liveness.Track call and EventBuffer.Recover: a participant
// slot held by a pid that does not exist on this machine must be
// reclaimed the next time the sweep runs (spec §6/§7, testable property
// #8), the same recovery eventbuffer_test.go already verifies directly
// against EventBuffer.Recover.
func TestLivenessSweepRecoversDeadParticipant(t *testing.T) {
	mgr, err := shm.NewManager(t.TempDir())
	require.NoError(t, err)

	builder := shm.NewLayoutBuilder()
	layout, err := builder.AddEvent("left_tire", 1, 1, 4, 4, 1, false)
	require.NoError(t, err)
	region, err := mgr.OpenOrCreate("tires", builder.Build(), "com.example.Tires")
	require.NoError(t, err)

	eb := slotengine.New(region, layout, false, nil)
	eb.InitControlBlocks()

	a, err := eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
	_, err = a.Publish()
	require.NoError(t, err)

	participant, err := eb.AcquireSubscriberSlot()
	require.NoError(t, err)
	_, err = eb.TryAcquireNext(participant, slotengine.QoSClassQM, 0)
	require.NoError(t, err)

	// The only free slot is now referenced by "participant"; a non-lossy
	// allocate must fail until that reference is reclaimed.
	_, err = eb.Allocate(slotengine.QoSClassQM)
	require.ErrorIs(t, err, slotengine.ErrAllocateFailed)

	const nonexistentPID = int32(2147483000) // far past any real pid_max
	l := newLiveness(10 * time.Millisecond)
	defer l.Close()
	l.Track(nonexistentPID, eb, participant, slotengine.QoSClassQM)

	l.sweep()

	_, err = eb.Allocate(slotengine.QoSClassQM)
	require.NoError(t, err)
}
