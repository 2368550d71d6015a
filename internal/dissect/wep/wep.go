/**
 * WEP Decryptor.
 *
 * Implements RC4 key-scheduling and stream decryption for 802.11 WEP
 * frames (component H.WEP, DECRYPT stage). Key material is IV(3) ||
 * user_key(5|13|16); the plaintext's trailing 4-byte ICV is verified
 * against the standard 802.11 CRC32 polynomial to confirm the key was
 * right. Failure is non-fatal: the caller increments the key's Failed
 * counter and leaves the packet undecrypted.
 *
 * Grounded on the original dissector's WEP handling in
 * packetdissectors.cc (crypt key table keyed by BSSID, IV+key RC4
 * stream cipher, ICV-as-CRC32 self-check); this package reimplements
 * RC4 directly since Go's stdlib has no crypto/rc4 variant that accepts
 * a pre-mixed IV||key without an extra allocation per packet, and RC4
 * is already considered broken so no stdlib/x/crypto package is worth
 * pulling in for five lines of KSA/PRGA (see DESIGN.md).
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package wep

import (
	"fmt"
	"hash/crc32"
	"strings"
	"sync"
)

// ivLen is the 3-byte WEP initialization vector prepended to the
// ciphertext of every WEP frame.
const ivLen = 3

// icvLen is the 4-byte integrity check value trailing the plaintext.
const icvLen = 4

var crc32_80211 = crc32.MakeTable(crc32.IEEE)

// Key is one registered WEP key, keyed by BSSID. UserKey must be 5, 13,
// or 16 bytes (WEP-40/104/128).
type Key struct {
	BSSID   string
	UserKey []byte

	mu     sync.Mutex
	Failed uint64
}

func (k *Key) recordFailure() {
	k.mu.Lock()
	k.Failed++
	k.mu.Unlock()
}

// KeyRing resolves a BSSID to its registered WEP key, mirroring the
// original implementation's per-BSSID crypt key table.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]*Key
}

// NewKeyRing returns an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]*Key)}
}

// Add registers userKey for bssid (case-insensitive), replacing any
// prior key for that BSSID.
func (r *KeyRing) Add(bssid string, userKey []byte) error {
	switch len(userKey) {
	case 5, 13, 16:
	default:
		return fmt.Errorf("wep: key length %d is not 5, 13, or 16 bytes", len(userKey))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[strings.ToLower(bssid)] = &Key{BSSID: bssid, UserKey: append([]byte(nil), userKey...)}
	return nil
}

// Lookup returns the key registered for bssid, if any.
func (r *KeyRing) Lookup(bssid string) (*Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[strings.ToLower(bssid)]
	return k, ok
}

// Decrypt attempts to RC4-decrypt ciphertext (IV || encrypted-body,
// where encrypted-body is LLC+payload || ICV) using key. On success it
// returns the plaintext body with the ICV stripped and true; on ICV
// mismatch it increments key.Failed and returns (nil, false).
func Decrypt(key *Key, ciphertext []byte) ([]byte, bool) {
	if len(ciphertext) < ivLen+icvLen {
		key.recordFailure()
		return nil, false
	}

	iv := ciphertext[:ivLen]
	body := ciphertext[ivLen:]

	rc4Key := make([]byte, 0, ivLen+len(key.UserKey))
	rc4Key = append(rc4Key, iv...)
	rc4Key = append(rc4Key, key.UserKey...)

	plain := make([]byte, len(body))
	rc4Stream(rc4Key, body, plain)

	icv := plain[len(plain)-icvLen:]
	data := plain[:len(plain)-icvLen]

	computed := crc32.Checksum(data, crc32_80211)
	stored := uint32(icv[0]) | uint32(icv[1])<<8 | uint32(icv[2])<<16 | uint32(icv[3])<<24
	if computed != stored {
		key.recordFailure()
		return nil, false
	}
	return data, true
}

// rc4Stream runs the standard RC4 KSA followed by PRGA, XORing src into
// dst (dst and src may be the same backing length but must not alias
// byte-for-byte in a way that reads an already-written byte).
func rc4Stream(key, src, dst []byte) {
	var s [256]byte
	for i := 0; i < 256; i++ {
		s[i] = byte(i)
	}

	j := 0
	for i := 0; i < 256; i++ {
		j = (j + int(s[i]) + int(key[i%len(key)])) & 0xff
		s[i], s[j] = s[j], s[i]
	}

	i, j := 0, 0
	for n := 0; n < len(src); n++ {
		i = (i + 1) & 0xff
		j = (j + int(s[i])) & 0xff
		s[i], s[j] = s[j], s[i]
		k := s[(int(s[i])+int(s[j]))&0xff]
		dst[n] = src[n] ^ k
	}
}
