package sessiondedup

import (
	"crypto/md5"
	"encoding/hex"
)

const unknownValue = "unknown"

// Fingerprint returns the device identity for an (IP, user agent) pair:
// the hex MD5 of "ip|userAgent", with "unknown" standing in for an empty
// value on either side.
//
// It is an equality key for grouping sessions, not a security token.
// Distinct pairs may collide in theory; that only merges two devices in
// the session list.
func Fingerprint(ip, userAgent string) string {
	if ip == "" {
		ip = unknownValue
	}
	if userAgent == "" {
		userAgent = unknownValue
	}

	sum := md5.Sum([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}
