package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Prefix identifies the hash scheme in the signature header value.
const Prefix = "sha256="

// Compute returns the signature header value for the given payload: an
// HMAC-SHA256 over body||timestamp keyed with the subscription secret,
// hex-encoded and prefixed with the scheme.
func Compute(secret string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Timestamp returns the signing timestamp for t as unix seconds, the format
// carried in the timestamp header.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// Verify checks a received signature header against the body and timestamp.
// Leeway bounds how far the signing timestamp may drift from now; receivers
// use it to reject replayed requests.
func Verify(secret string, body []byte, timestamp, sigHeader string, leeway time.Duration) (bool, string) {
	if timestamp == "" || sigHeader == "" {
		return false, "missing headers"
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false, "invalid timestamp"
	}
	now := time.Now().Unix()
	if abs64(now-unix) > int64(leeway.Seconds()) {
		return false, "timestamp too far from now (outside leeway)"
	}
	got := strings.TrimPrefix(sigHeader, Prefix)
	want := strings.TrimPrefix(Compute(secret, body, timestamp), Prefix)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return false, "sig mismatch"
	}
	return true, ""
}

// abs64 returns the absolute value of an int64
func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
