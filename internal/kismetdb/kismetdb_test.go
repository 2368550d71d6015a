package kismetdb

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndReplayPreservesOrder(t *testing.T) {
	path := "test_kismetdb.sqlite"
	defer os.Remove(path)

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RegisterDatasource("uuid-1", "pcapfile", "file:/tmp/x.pcap", "replay0", "wlan0mon"))

	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		r := Record{
			Ts:          base.Add(time.Duration(i) * time.Second),
			SourceUUID:  "uuid-1",
			DLT:         105,
			OriginalLen: 10 + i,
			Data:        []byte{byte(i), byte(i + 1)},
		}
		require.NoError(t, store.InsertPacket(r))
	}

	var seen []int
	err = store.Replay(func(r Record) error {
		seen = append(seen, r.OriginalLen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12}, seen)
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	path := "test_kismetdb_stop.sqlite"
	defer os.Remove(path)

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertPacket(Record{
			Ts:         time.Unix(1700000000+int64(i), 0),
			SourceUUID: "uuid-2",
			DLT:        105,
			Data:       []byte{1},
		}))
	}

	count := 0
	stopErr := assert.AnError
	err = store.Replay(func(Record) error {
		count++
		if count == 2 {
			return stopErr
		}
		return nil
	})
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, 2, count)
}
