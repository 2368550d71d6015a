package capframework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsFDPair(t *testing.T) {
	f, err := ParseFlags("capture_test", []string{"--in-fd", "3", "--out-fd", "4", "--source", "wlan0"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.InFD)
	assert.Equal(t, 4, f.OutFD)
	assert.Equal(t, "wlan0", f.Source)
}

func TestParseFlagsConnect(t *testing.T) {
	f, err := ParseFlags("capture_test", []string{"--connect", "unix:/tmp/kismet.sock"})
	require.NoError(t, err)
	assert.Equal(t, "unix:/tmp/kismet.sock", f.Connect)
}

func TestParseFlagsRejectsBothOrNeither(t *testing.T) {
	_, err := ParseFlags("capture_test", []string{})
	assert.Error(t, err)

	_, err = ParseFlags("capture_test", []string{"--in-fd", "3", "--out-fd", "4", "--connect", "localhost:1234"})
	assert.Error(t, err)
}

func TestParseFlagsHelpBypassesRequirement(t *testing.T) {
	f, err := ParseFlags("capture_test", []string{"--help"})
	require.NoError(t, err)
	assert.True(t, f.Help)
}
