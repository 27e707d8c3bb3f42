package telegram

import (
	"fmt"
	"strings"
)

// FloodWaitSeconds returns the wait duration carried by a FLOOD_WAIT error,
// or 0 when err is not a flood-wait signal.
//
// gotd errors are usually wrapped; matching the error string is the most
// reliable way to detect them without deep coupling to the tg definitions.
// The format is "rpc error code 420: FLOOD_WAIT_15".
func FloodWaitSeconds(err error) int {
	if err == nil {
		return 0
	}

	str := err.Error()
	if !strings.Contains(str, "FLOOD_WAIT_") {
		return 0
	}

	parts := strings.Split(str, "FLOOD_WAIT_")
	if len(parts) < 2 {
		return 0
	}

	// the number may be followed by a " (caused by ...)" suffix
	var seconds int
	_, _ = fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds)
	return seconds
}
