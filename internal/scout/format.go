package scout

import (
	"fmt"
	"time"
)

// FormatTime renders t like "5th August 2025 05:59PM".
func FormatTime(t time.Time) string {
	return fmt.Sprintf("%d%s %s", t.Day(), ordinalSuffix(t.Day()), t.Format("January 2006 03:04PM"))
}

// ordinalSuffix returns st/nd/rd/th for a day of month. 11..13 are all th.
func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// FormatDuration renders a duration in the largest sensible unit,
// e.g. "42.0 seconds", "3.5 minutes", "2.1 hours".
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1f seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1f minutes", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	default:
		return fmt.Sprintf("%.1f days", seconds/86400)
	}
}
