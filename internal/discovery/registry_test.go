package discovery_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola/internal/discovery"
)

func TestOfferAndFindService(t *testing.T) {
	reg := discovery.NewRegistry(t.TempDir(), 8, zerolog.Nop())
	defer reg.Close()

	epoch, err := reg.Offer("com.example.Tires", "/My/Funk/ServiceName", "tires")
	require.NoError(t, err)
	require.NotZero(t, epoch)

	handles, err := reg.FindService("com.example.Tires", "/My/Funk/ServiceName")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	require.Equal(t, epoch, handles[0].OfferEpoch)
}

func TestFindServiceOfUnofferedInstanceReturnsEmpty(t *testing.T) {
	reg := discovery.NewRegistry(t.TempDir(), 8, zerolog.Nop())
	defer reg.Close()

	handles, err := reg.FindService("com.example.Tires", "/Never/Offered")
	require.NoError(t, err)
	require.Empty(t, handles)
}

func TestStopOfferWithdrawsAdvertisement(t *testing.T) {
	reg := discovery.NewRegistry(t.TempDir(), 8, zerolog.Nop())
	defer reg.Close()

	_, err := reg.Offer("com.example.Tires", "/My/Funk/ServiceName", "tires")
	require.NoError(t, err)
	require.NoError(t, reg.StopOffer("com.example.Tires", "/My/Funk/ServiceName"))

	handles, err := reg.FindService("com.example.Tires", "/My/Funk/ServiceName")
	require.NoError(t, err)
	require.Empty(t, handles)
}

func TestFindServiceAnyReturnsEveryInstanceOfInterface(t *testing.T) {
	reg := discovery.NewRegistry(t.TempDir(), 8, zerolog.Nop())
	defer reg.Close()

	_, err := reg.Offer("com.example.Tires", "/Car1/Tires", "tires1")
	require.NoError(t, err)
	_, err = reg.Offer("com.example.Tires", "/Car2/Tires", "tires2")
	require.NoError(t, err)

	handles, err := reg.FindService("com.example.Tires", "")
	require.NoError(t, err)
	require.Len(t, handles, 2)
}

func TestReOfferReusesAndRefreshesEpoch(t *testing.T) {
	reg := discovery.NewRegistry(t.TempDir(), 8, zerolog.Nop())
	defer reg.Close()

	epoch1, err := reg.Offer("com.example.Tires", "/My/Funk/ServiceName", "tires")
	require.NoError(t, err)
	require.NoError(t, reg.StopOffer("com.example.Tires", "/My/Funk/ServiceName"))
	epoch2, err := reg.Offer("com.example.Tires", "/My/Funk/ServiceName", "tires")
	require.NoError(t, err)

	require.NotEqual(t, epoch1, epoch2)
}
