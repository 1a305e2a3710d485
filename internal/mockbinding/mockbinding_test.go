package mockbinding_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola/internal/mockbinding"
)

func TestMockAllocatePublishAcquireRelease(t *testing.T) {
	eb := mockbinding.New(2, false)

	a, err := eb.Allocate()
	require.NoError(t, err)
	a.SetPayload([]byte{1, 2, 3, 4})
	seq, err := a.Publish()
	require.NoError(t, err)

	sample, err := eb.TryAcquireNext(0)
	require.NoError(t, err)
	require.Equal(t, seq, sample.Sequence())
	require.Equal(t, []byte{1, 2, 3, 4}, sample.Payload())
	sample.Release()
}

func TestMockAllocateReusesSlotAfterRelease(t *testing.T) {
	eb := mockbinding.New(1, false)

	a, err := eb.Allocate()
	require.NoError(t, err)
	a.SetPayload([]byte{1})
	_, err = a.Publish()
	require.NoError(t, err)

	sample, err := eb.TryAcquireNext(0)
	require.NoError(t, err)
	sample.Release()

	// Release must put the slot back to Free, or this second Allocate on a
	// single-slot, non-lossy buffer fails forever.
	a2, err := eb.Allocate()
	require.NoError(t, err)
	a2.SetPayload([]byte{2})
	_, err = a2.Publish()
	require.NoError(t, err)
}

func TestMockAllocateFailsWhenFull(t *testing.T) {
	eb := mockbinding.New(1, false)
	a, err := eb.Allocate()
	require.NoError(t, err)
	_, err = a.Publish()
	require.NoError(t, err)

	_, err = eb.Allocate()
	require.ErrorIs(t, err, mockbinding.ErrAllocateFailed)
}

func TestMockLossyStealsOldestReady(t *testing.T) {
	eb := mockbinding.New(1, true)
	a, err := eb.Allocate()
	require.NoError(t, err)
	seq1, err := a.Publish()
	require.NoError(t, err)

	a2, err := eb.Allocate()
	require.NoError(t, err)
	seq2, err := a2.Publish()
	require.NoError(t, err)
	require.Greater(t, seq2, seq1)
}

func TestMockIntoSample(t *testing.T) {
	eb := mockbinding.New(1, false)
	a, err := eb.Allocate()
	require.NoError(t, err)
	a.SetPayload([]byte{9})

	ref, err := a.IntoSample()
	require.NoError(t, err)
	require.Equal(t, []byte{9}, ref.Payload())
}
