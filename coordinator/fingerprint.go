package coordinator

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// NetworkFingerprint computes the deterministic, hour-granular digest used
// as a reconnection sanity check: SHA-256 of the sorted active
// peer ids, sorted recent valid announcements, and the local bridge id. It
// is informational only — reconnection MUST still succeed on token
// signature alone when the fingerprint has drifted.
func NetworkFingerprint(activePeerIDs []string, recentAnnouncements []string, localBridgeID string, at time.Time) string {
	peers := append([]string{}, activePeerIDs...)
	sort.Strings(peers)
	announcements := append([]string{}, recentAnnouncements...)
	sort.Strings(announcements)

	h := sha256.New()
	h.Write([]byte(strings.Join(peers, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(announcements, ",")))
	h.Write([]byte{0})
	h.Write([]byte(localBridgeID))
	h.Write([]byte{0})
	hourBucket := at.Truncate(time.Hour).Unix()
	h.Write([]byte{byte(hourBucket), byte(hourBucket >> 8), byte(hourBucket >> 16), byte(hourBucket >> 24)})

	return hex.EncodeToString(h.Sum(nil))
}
