package wep

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encryptForTest is the mirror of Decrypt: RC4-encrypt plaintext||icv and
// prepend iv, used only to build fixtures (real captures already arrive
// encrypted).
func encryptForTest(iv, userKey, plaintext []byte) []byte {
	icv := crc32.ChecksumIEEE(plaintext)
	icvBytes := []byte{byte(icv), byte(icv >> 8), byte(icv >> 16), byte(icv >> 24)}

	rc4Key := append(append([]byte(nil), iv...), userKey...)
	body := append(append([]byte(nil), plaintext...), icvBytes...)
	cipher := make([]byte, len(body))
	rc4Stream(rc4Key, body, cipher)

	return append(append([]byte(nil), iv...), cipher...)
}

func TestDecryptHappyPath(t *testing.T) {
	// key 40:CD:C3:5B:6E for BSSID 00:11:22:33:44:55, IV=00 00 00.
	userKey := []byte{0x40, 0xCD, 0xC3, 0x5B, 0x6E}
	ring := NewKeyRing()
	require.NoError(t, ring.Add("00:11:22:33:44:55", userKey))

	plaintext := []byte("LLC+IP+UDP fixture payload")
	iv := []byte{0x00, 0x00, 0x00}
	ciphertext := encryptForTest(iv, userKey, plaintext)

	key, ok := ring.Lookup("00:11:22:33:44:55")
	require.True(t, ok)

	plain, ok := Decrypt(key, ciphertext)
	require.True(t, ok)
	assert.Equal(t, plaintext, plain)
	assert.Equal(t, uint64(0), key.Failed)
}

func TestDecryptFailureIncrementsFailedCounter(t *testing.T) {
	userKey := []byte{0x40, 0xCD, 0xC3, 0x5B, 0x6E}
	ring := NewKeyRing()
	require.NoError(t, ring.Add("00:11:22:33:44:55", userKey))

	iv := []byte{0x01, 0x02, 0x03}
	ciphertext := encryptForTest(iv, userKey, []byte("some payload"))
	ciphertext[len(ciphertext)-1] ^= 0xFF // corrupt the trailing ICV byte

	key, _ := ring.Lookup("00:11:22:33:44:55")
	_, ok := Decrypt(key, ciphertext)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), key.Failed)
}

func TestKeyRingRejectsBadLength(t *testing.T) {
	ring := NewKeyRing()
	err := ring.Add("00:11:22:33:44:55", []byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestRC4StreamRoundTrips(t *testing.T) {
	key := []byte("testkey123")
	plain := []byte("the quick brown fox jumps over the lazy dog")

	cipher := make([]byte, len(plain))
	rc4Stream(key, plain, cipher)

	recovered := make([]byte, len(cipher))
	rc4Stream(key, cipher, recovered)

	assert.Equal(t, plain, recovered)
}
