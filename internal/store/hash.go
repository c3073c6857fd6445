package store

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Digest returns a hex xxh3 digest of an encoded evidence payload. Equal
// encodings yield equal digests; it is not a cryptographic hash.
func Digest(encoded []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(encoded))
}
