package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// idempotencyWindow buckets retries: the same logical request retried within
// the window derives the same key, so vendor-side duplicate suppression kicks
// in instead of creating a second resource.
const idempotencyWindow = time.Hour

// DeriveIdempotencyKey produces a stable key from the operation name and the
// canonical JSON form of the payload, bucketed by time. It is deterministic
// on purpose; random keys would defeat retry collision.
func DeriveIdempotencyKey(operation string, payload any, at time.Time) string {
	canonical, err := json.Marshal(payload)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%+v", payload))
	}
	bucket := at.UTC().Truncate(idempotencyWindow).Unix()

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", operation, bucket)
	h.Write(canonical)
	return "lc_" + hex.EncodeToString(h.Sum(nil))[:40]
}
