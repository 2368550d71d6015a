package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// size 8, write(AAAA), read(4), write(BBBBBB), read(6) -> "BBBBBB", used=0.
func TestWrapAround(t *testing.T) {
	r := New(8)

	n := r.Write([]byte("AAAA"))
	require.Equal(t, 4, n)

	r.Read(nil, 4)

	n = r.Write([]byte("BBBBBB"))
	require.Equal(t, 6, n)

	buf := make([]byte, 6)
	got := r.Read(buf, 6)
	require.Equal(t, 6, got)
	assert.Equal(t, "BBBBBB", string(buf))
	assert.Equal(t, 0, r.Used())
}

func TestWriteRejectsOversize(t *testing.T) {
	r := New(4)
	n := r.Write([]byte("abcde"))
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, r.Used())
}

func TestReserveCommitWraps(t *testing.T) {
	r := New(8)
	r.Write([]byte("123456"))
	r.Read(nil, 6) // start now at 6, used 0

	region, err := r.Reserve(5)
	require.NoError(t, err)
	require.Len(t, region, 5)
	copy(region, []byte("wxyz!"))
	require.NoError(t, r.Commit(region, 5))

	out := make([]byte, 5)
	got := r.Read(out, 5)
	require.Equal(t, 5, got)
	assert.Equal(t, "wxyz!", string(out))
}

func TestReserveFreeDiscards(t *testing.T) {
	r := New(8)
	region, err := r.Reserve(4)
	require.NoError(t, err)
	copy(region, []byte("xxxx"))
	r.ReserveFree()
	assert.Equal(t, 0, r.Used())
}

func TestOverlappingReservePanics(t *testing.T) {
	r := New(8)
	_, err := r.Reserve(4)
	require.NoError(t, err)
	assert.Panics(t, func() { r.Reserve(2) })
}

func TestCommitWithoutReservePanics(t *testing.T) {
	r := New(8)
	assert.Panics(t, func() { r.Commit(nil, 0) })
}

func TestPeekZCThenFree(t *testing.T) {
	r := New(8)
	r.Write([]byte("hello"))

	window := r.PeekZC(5)
	assert.Equal(t, "hello", string(window))
	assert.Equal(t, 5, r.Used()) // peek doesn't consume

	r.PeekFree()
	consumed := make([]byte, 5)
	r.Read(consumed, 5)
	assert.Equal(t, "hello", string(consumed))
}

func TestSearchByte(t *testing.T) {
	r := New(16)
	r.Write([]byte(`{"a":1}` + "\n" + `{"b":2}`))
	off := r.SearchByte('\n')
	assert.Equal(t, 7, off)

	line := make([]byte, off)
	r.Read(line, off)
	assert.Equal(t, `{"a":1}`, string(line))
	r.Read(nil, 1) // consume the newline itself
}

func TestBytesSnapshotAcrossWrap(t *testing.T) {
	r := New(8)
	r.Write([]byte("123456"))
	r.Read(nil, 6)
	r.Write([]byte("wxyz!!"))
	assert.Equal(t, "wxyz!!", string(r.Bytes()))
	assert.Equal(t, 6, r.Used(), "Bytes must not consume")
}

func TestSearchByteAbsent(t *testing.T) {
	r := New(8)
	r.Write([]byte("abcd"))
	assert.Equal(t, -1, r.SearchByte('\n'))
}

// used+available must equal size always, and after any sequence of
// reserve/commit/reserve_free with at most one outstanding reservation, used
// must equal total committed minus total read.
func TestRapidClosureInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 64).Draw(t, "size")
		r := New(size)

		var committed, readTotal int
		outstanding := false
		var region []byte
		var reserveLen int

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			assert.Equal(t, size, r.Used()+r.Available())

			if !outstanding && rapid.Bool().Draw(t, "doReserve") {
				n := rapid.IntRange(1, size).Draw(t, "reserveN")
				reg, err := r.Reserve(n)
				if err == nil {
					region = reg
					reserveLen = n
					outstanding = true
				}
				continue
			}

			if outstanding {
				if rapid.Bool().Draw(t, "commitOrFree") {
					used := rapid.IntRange(0, reserveLen).Draw(t, "usedLen")
					require.NoError(t, r.Commit(region, used))
					committed += used
				} else {
					r.ReserveFree()
				}
				outstanding = false
				continue
			}

			if rapid.Bool().Draw(t, "doRead") {
				n := rapid.IntRange(0, size).Draw(t, "readN")
				got := r.Read(nil, n)
				readTotal += got
			}
		}

		assert.Equal(t, size, r.Used()+r.Available())
		assert.Equal(t, committed-readTotal, r.Used())
	})
}
