package capframework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelHopperRejectsEmptyList(t *testing.T) {
	_, err := NewChannelHopper(nil, 1.0, false, 0)
	assert.Error(t, err)
}

func TestChannelHopperCyclesAllChannels(t *testing.T) {
	chans := []string{"1", "6", "11"}
	h, err := NewChannelHopper(chans, 5.0, false, 0)
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < len(chans)*3; i++ {
		seen[h.Next()]++
	}
	for _, c := range chans {
		assert.Equal(t, 3, seen[c])
	}
}

func TestChannelHopperShuffleStillCoversAllChannels(t *testing.T) {
	chans := []string{"1", "2", "3", "4", "5", "6"}
	h, err := NewChannelHopper(chans, 10.0, true, 2)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < len(chans); i++ {
		seen[h.Next()] = true
	}
	assert.Len(t, seen, len(chans), "a full cycle must still visit every channel even when shuffled")
}
