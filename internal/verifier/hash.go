package verifier

import (
	// register digest implementations for go-digest
	_ "crypto/sha256"
	_ "crypto/sha512"
	"strings"

	errors "github.com/Laisky/errors/v2"
	digest "github.com/opencontainers/go-digest"
)

// DefaultAlgorithm is used when Hash is called without an algorithm.
const DefaultAlgorithm = digest.SHA256

// Hash returns the hex-encoded digest of content.
func Hash(content []byte, algorithm digest.Algorithm) (string, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	if !algorithm.Available() {
		return "", errors.Errorf("unsupported hash algorithm %q", algorithm)
	}
	return algorithm.FromBytes(content).Encoded(), nil
}

// SHA256Hex returns the hex-encoded SHA-256 digest of content.
func SHA256Hex(content []byte) string {
	return DefaultAlgorithm.FromBytes(content).Encoded()
}

// builtinMaliciousHashes are SHA-256 digests of well-known test payloads.
var builtinMaliciousHashes = []string{
	// EICAR standard antivirus test file
	"275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f",
}

// Denylist is a set of known-malicious content digests.
//
// It is a fast pre-filter before full content scanning, never a substitute for it.
type Denylist struct {
	hashes map[string]struct{}
}

// NewDenylist builds a denylist from the built-in digests plus extra.
func NewDenylist(extra ...string) *Denylist {
	d := &Denylist{hashes: make(map[string]struct{}, len(builtinMaliciousHashes)+len(extra))}
	for _, h := range builtinMaliciousHashes {
		d.hashes[h] = struct{}{}
	}
	for _, h := range extra {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		d.hashes[h] = struct{}{}
	}
	return d
}

// Contains reports whether hash is on the denylist.
func (d *Denylist) Contains(hash string) bool {
	if d == nil {
		return false
	}
	_, ok := d.hashes[strings.ToLower(strings.TrimSpace(hash))]
	return ok
}

// Len returns the number of digests on the list.
func (d *Denylist) Len() int {
	if d == nil {
		return 0
	}
	return len(d.hashes)
}
