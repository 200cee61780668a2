package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DeriveIdempotencyKey builds the deduplication key for a delivery. When the
// provider supplies a delivery id, the key is source-scoped on that id.
// Without one we fall back to a hash of the raw payload; identical payloads
// redelivered under different attempts then dedup against each other, which
// is accepted as false-dedup rather than treated as a collision bug.
func DeriveIdempotencyKey(source SourceType, deliveryID string, payload []byte) string {
	if deliveryID != "" {
		return fmt.Sprintf("%s:%s", source, deliveryID)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:sha256:%s", source, hex.EncodeToString(sum[:]))
}
