package verifier

import digest "github.com/opencontainers/go-digest"

// Verifier bundles the content checks behind one value so callers can inject it.
type Verifier struct {
	denylist *Denylist
}

// New constructs a Verifier whose denylist includes extraHashes.
func New(extraHashes ...string) *Verifier {
	return &Verifier{denylist: NewDenylist(extraHashes...)}
}

// VerifySignature checks content against the claimed content type.
func (v *Verifier) VerifySignature(content []byte, claimedType string) SignatureResult {
	return VerifySignature(content, claimedType)
}

// Hash returns the hex digest of content using algorithm, SHA-256 when empty.
func (v *Verifier) Hash(content []byte, algorithm digest.Algorithm) (string, error) {
	return Hash(content, algorithm)
}

// CheckKnownMaliciousHash reports whether hash is denylisted.
func (v *Verifier) CheckKnownMaliciousHash(hash string) bool {
	if v == nil {
		return false
	}
	return v.denylist.Contains(hash)
}
