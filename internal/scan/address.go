package scan

import (
	"strconv"
	"strings"
)

// Local capture handles recognised by the classifier. "CAM:00:0640:0480"
// style identifiers come from camera enumeration backends.
var localHandlePrefixes = []string{"cam:", "video:", "/dev/video"}

// Classify maps a raw address string to its Kind. Rules are checked in order
// and the first match wins; anything unrecognised degrades to KindUnknown
// rather than failing.
func Classify(raw string) Kind {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return KindUnknown
	}

	if isLinkLayer(addr) {
		return KindLinkLayer
	}
	if isIPv4Literal(addr) {
		return KindIPLiteral
	}
	for _, prefix := range localHandlePrefixes {
		if strings.HasPrefix(strings.ToLower(addr), prefix) {
			return KindLocalHandle
		}
	}
	return KindUnknown
}

// isLinkLayer reports whether addr looks like a MAC-style identifier:
// six or more colon separated hex groups.
func isLinkLayer(addr string) bool {
	groups := strings.Split(addr, ":")
	if len(groups) < 6 {
		return false
	}
	for _, group := range groups {
		if len(group) == 0 || len(group) > 2 {
			return false
		}
		for _, r := range group {
			if !isHexDigit(r) {
				return false
			}
		}
	}
	return true
}

// isIPv4Literal reports whether addr is a dotted quad with each segment a
// valid 0-255 decimal octet.
func isIPv4Literal(addr string) bool {
	segments := strings.Split(addr, ".")
	if len(segments) != 4 {
		return false
	}
	for _, segment := range segments {
		if segment == "" || len(segment) > 3 {
			return false
		}
		value, err := strconv.Atoi(segment)
		if err != nil || value < 0 || value > 255 {
			return false
		}
		// Reject non-decimal noise such as "1e2".
		for _, r := range segment {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f':
		return true
	case r >= 'A' && r <= 'F':
		return true
	default:
		return false
	}
}
