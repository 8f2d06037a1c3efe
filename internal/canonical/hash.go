package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256HexStrings joins the given fields with '|' and returns the
// SHA-256 hex digest, matching the scope_hash construction in §4.1:
// SHA256(actor_type ∥ '|' ∥ actor_id ∥ '|' ∥ txn_type ∥ '|' ∥ idempotency_key).
func SHA256HexStrings(fields ...string) string {
	return SHA256Hex([]byte(strings.Join(fields, "|")))
}

// HashJSON canonicalizes v and returns its SHA-256 hex digest, used for
// payload_hash computation over canonical_json(command).
func HashJSON(v interface{}) (string, error) {
	encoded, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(encoded), nil
}

// ChainHash computes a journal_hash given the previous hash and the
// canonical JSON body, per §3: journal_hash = SHA256(prev_hash ∥ canonical_json(body)).
func ChainHash(prevHash string, body interface{}) (string, error) {
	encoded, err := Marshal(body)
	if err != nil {
		return "", err
	}
	return SHA256Hex(append([]byte(prevHash), encoded...)), nil
}
