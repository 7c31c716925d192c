package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Externally shareable identifiers: prefix + base36 time token + random
// suffix. Distinct from the row's storage key.
const (
	transactionIDPrefix = "txn"
	refundIDPrefix      = "ref"
	disputeIDPrefix     = "dsp"
)

// NewTransactionID mints a globally unique external transaction id.
func NewTransactionID() string { return newToken(transactionIDPrefix) }

// NewRefundID mints the id for an embedded refund record.
func NewRefundID() string { return newToken(refundIDPrefix) }

// NewDisputeID mints the id for an embedded dispute record.
func NewDisputeID() string { return newToken(disputeIDPrefix) }

func newToken(prefix string) string {
	timePart := strconv.FormatInt(time.Now().UnixMilli(), 36)
	randomPart := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s%s", prefix, timePart, randomPart)
}
