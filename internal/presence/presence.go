// Package presence turns raw activity state into human-readable labels.
package presence

import (
	"fmt"
	"time"
)

// onlineThreshold caps how long a reported online flag is trusted. A client
// that set online=true and never cleared it would otherwise show as online
// forever; a lastSeen older than this wins over the flag.
const onlineThreshold = 2 * time.Minute

// FormatActivity renders a user's activity status. lastSeen equal to the zero
// time means the user was never seen.
func FormatActivity(isOnline bool, lastSeen, now time.Time) string {
	if isOnline && !lastSeen.IsZero() && now.Sub(lastSeen) <= onlineThreshold {
		return "online"
	}

	if lastSeen.IsZero() {
		return "offline"
	}

	elapsed := now.Sub(lastSeen)
	switch {
	case elapsed < time.Minute:
		return "active now"
	case elapsed < time.Hour:
		return fmt.Sprintf("active %dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("active %dh ago", int(elapsed.Hours()))
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("active %dd ago", int(elapsed.Hours()/24))
	}

	// Older than a week: fall back to the wall-clock time of the last visit.
	return "active " + lastSeen.Format("15:04")
}
