package imagecache

import (
	"encoding/hex"
	"hash"
	"strings"

	"github.com/opencontainers/go-digest"
)

// hashChunkSize bounds how much payload is fed to the hasher per write
// so hashing a large image never monopolizes the scheduler.
const hashChunkSize = 1 << 20

// Hasher is the cryptographic hashing capability injected into the
// Manager. Implementations must be safe for concurrent use; New must
// return an independent hash state per call.
type Hasher interface {
	// Algorithm names the digest algorithm, e.g. "sha256".
	Algorithm() string

	// New returns a fresh hash state.
	New() hash.Hash
}

// sha256Hasher is the default Hasher, backed by the canonical digest
// algorithm from opencontainers/go-digest.
type sha256Hasher struct{}

func (sha256Hasher) Algorithm() string { return string(digest.SHA256) }
func (sha256Hasher) New() hash.Hash    { return digest.SHA256.Hash() }

// DefaultHasher returns the SHA-256 hasher used when none is injected.
func DefaultHasher() Hasher {
	return sha256Hasher{}
}

// hashPayload computes the hex-encoded digest of payload in bounded
// chunks.
func hashPayload(h Hasher, payload []byte) string {
	state := h.New()
	for len(payload) > 0 {
		n := len(payload)
		if n > hashChunkSize {
			n = hashChunkSize
		}
		state.Write(payload[:n])
		payload = payload[n:]
	}
	return hex.EncodeToString(state.Sum(nil))
}

// hashesEqual compares two digests, tolerating an "algorithm:" prefix
// and case differences in the hex encoding.
func hashesEqual(computed, expected string) bool {
	if i := strings.IndexByte(expected, ':'); i >= 0 {
		expected = expected[i+1:]
	}
	return strings.EqualFold(computed, expected)
}

// deriveID produces a stable cache key from a source URL for callers
// that do not supply their own id.
func deriveID(url string) string {
	return digest.FromString(url).Encoded()
}
