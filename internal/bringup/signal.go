package bringup

import (
	"regexp"
	"strconv"
)

const RSSIUnknown = 99

var (
	reCSQ  = regexp.MustCompile(`\+CSQ:\s*(\d+),(\d+)`)
	reCOPS = regexp.MustCompile(`\+COPS:\s*\d+(?:,\d+,"([^"]*)")?`)
)

// ParseCSQ returns rssi 0..31 or RSSIUnknown.
func ParseCSQ(s string) (rssi int, ok bool) {
	m := reCSQ.FindStringSubmatch(s)
	if m == nil {
		return RSSIUnknown, false
	}
	rssi, err := strconv.Atoi(m[1])
	if err != nil || rssi > RSSIUnknown {
		return RSSIUnknown, false
	}
	return rssi, true
}

// ParseCOPS returns operator name, empty when not registered.
func ParseCOPS(s string) (string, bool) {
	m := reCOPS.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RSSIdBm converts CSQ rssi to dBm, ok=false for unknown.
func RSSIdBm(rssi int) (int, bool) {
	if rssi < 0 || rssi > 31 {
		return 0, false
	}
	return -113 + 2*rssi, true
}
