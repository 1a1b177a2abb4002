package adb

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	wakefulnessRe = regexp.MustCompile(`mWakefulness=(\w+)`)
	displayRe     = regexp.MustCompile(`Display Power: state=(\w+)`)
	focusRe       = regexp.MustCompile(`mCurrentFocus=Window\{\S+ \S+ ([^/\s}]+)`)
)

// parsePowered extracts the screen power state from `dumpsys power`.
func parsePowered(out string) (powered, ok bool) {
	if m := wakefulnessRe.FindStringSubmatch(out); m != nil {
		return strings.EqualFold(m[1], "Awake"), true
	}
	if m := displayRe.FindStringSubmatch(out); m != nil {
		return strings.EqualFold(m[1], "ON"), true
	}
	return false, false
}

// parseForegroundApp extracts the focused package from `dumpsys window`.
func parseForegroundApp(out string) (string, bool) {
	m := focusRe.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// connect replies are plain text; these prefixes are the ones adb prints.
func connectSucceeded(reply string) bool {
	return strings.HasPrefix(reply, "connected to") || strings.HasPrefix(reply, "already connected to")
}

func connectNeedsPairing(reply string) bool {
	return strings.Contains(reply, "failed to authenticate") || strings.Contains(reply, "unauthorized")
}

func pairSucceeded(reply string) bool {
	return strings.HasPrefix(reply, "Successfully paired")
}

// parsePairingInput splits operator input into the pairing code and the
// address to pair with. Wireless debugging picks a new pairing port every
// time its dialog opens, so the input may lead with "port" or "host:port";
// a bare code pairs with fallback.
func parsePairingInput(input, host string, fallbackPort int) (code, addr string, err error) {
	fields := strings.Fields(input)
	switch len(fields) {
	case 1:
		return fields[0], net.JoinHostPort(host, strconv.Itoa(fallbackPort)), nil
	case 2:
	default:
		return "", "", fmt.Errorf("pairing input %q: want \"code\", \"port code\" or \"host:port code\"", input)
	}
	target, code := fields[0], fields[1]
	portStr := target
	if h, p, splitErr := net.SplitHostPort(target); splitErr == nil {
		host, portStr = h, p
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 || host == "" {
		return "", "", fmt.Errorf("pairing input %q: bad address %q", input, target)
	}
	return code, net.JoinHostPort(host, strconv.Itoa(port)), nil
}
