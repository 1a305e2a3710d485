package lola_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ferrox-auto/lola"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseInstanceSpecifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid nested path", "/My/Funk/ServiceName", false},
		{"valid single segment", "/Root", false},
		{"missing leading slash", "My/Funk/ServiceName", true},
		{"trailing slash", "/My/Funk/", true},
		{"empty segment", "/My//ServiceName", true},
		{"invalid character", "/My/Funk-Name", true},
		{"empty string", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := lola.ParseInstanceSpecifier(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				require.ErrorIs(t, err, lola.ErrInvalidInstanceSpecifier)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.input, spec.String())
		})
	}
}

func TestInstanceSpecifierEquals(t *testing.T) {
	a := lola.MustParseInstanceSpecifier("/My/Funk/ServiceName")
	b := lola.MustParseInstanceSpecifier("/My/Funk/ServiceName")
	c := lola.MustParseInstanceSpecifier("/My/Other/ServiceName")

	require.True(t, a.Equals(b))
	require.False(t, a.Equals(c))
}

func TestInstanceSpecifierIsZero(t *testing.T) {
	var zero lola.InstanceSpecifier
	require.True(t, zero.IsZero())

	spec := lola.MustParseInstanceSpecifier("/A")
	require.False(t, spec.IsZero())
}

func TestMustParseInstanceSpecifierPanics(t *testing.T) {
	require.Panics(t, func() {
		lola.MustParseInstanceSpecifier("no-leading-slash")
	})
}
