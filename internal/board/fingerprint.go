package board

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter maps client addresses to opaque, stable identifiers. Raw
// addresses are never stored.
type Fingerprinter struct {
	key []byte
}

func NewFingerprinter(salt string) *Fingerprinter {
	// blake2b keys are capped at 64 bytes; hashing the salt fits any length.
	key := blake2b.Sum256([]byte(salt))
	return &Fingerprinter{key: key[:]}
}

func (f *Fingerprinter) Fingerprint(ip string) string {
	h, err := blake2b.New256(f.key)
	if err != nil {
		// Only possible for keys over 64 bytes.
		panic(err)
	}
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))
}
