// Package countdown derives remaining-time breakdowns and progress
// percentages for auction deadlines.
package countdown

import (
	"fmt"
	"time"
)

type Breakdown struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Expired bool `json:"expired"`
}

// Duration converts the breakdown back into a duration.
func (b Breakdown) Duration() time.Duration {
	return time.Duration(b.Days)*24*time.Hour +
		time.Duration(b.Hours)*time.Hour +
		time.Duration(b.Minutes)*time.Minute +
		time.Duration(b.Seconds)*time.Second
}

func (b Breakdown) String() string {
	if b.Expired {
		return "ended"
	}
	if b.Days > 0 {
		return fmt.Sprintf("%dd %02dh %02dm %02ds", b.Days, b.Hours, b.Minutes, b.Seconds)
	}
	return fmt.Sprintf("%02dh %02dm %02ds", b.Hours, b.Minutes, b.Seconds)
}

// Remaining splits deadline-now into whole days, hours, minutes and seconds.
// Sub-second remainders are truncated.
func Remaining(deadline, now time.Time) Breakdown {
	diff := deadline.Sub(now)
	if diff <= 0 {
		return Breakdown{Expired: true}
	}

	secs := int64(diff / time.Second)
	return Breakdown{
		Days:    int(secs / 86400),
		Hours:   int(secs % 86400 / 3600),
		Minutes: int(secs % 3600 / 60),
		Seconds: int(secs % 60),
	}
}

// Progress returns how much of total has elapsed before deadline, as a
// percentage in [0, 100].
func Progress(deadline time.Time, total time.Duration, now time.Time) float64 {
	if total <= 0 {
		if now.Before(deadline) {
			return 0
		}
		return 100
	}

	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}

	return 100 * (1 - float64(remaining)/float64(total))
}
