package printer

import (
	"fmt"
	"time"
)

var agoUnits = []struct {
	name string
	size time.Duration
}{
	{name: "day", size: 24 * time.Hour},
	{name: "hour", size: time.Hour},
	{name: "minute", size: time.Minute},
}

// TimeAgo returns a human-readable relative time string in UTC.
// Examples: "5 seconds ago (UTC)", "2 minutes ago (UTC)", "3 hours ago (UTC)".
func TimeAgo(t time.Time) string {
	diff := time.Now().UTC().Sub(t.UTC())
	if diff < 0 {
		return "in the future (UTC)"
	}

	for _, u := range agoUnits {
		if diff >= u.size {
			return ago(int(diff/u.size), u.name)
		}
	}
	return ago(int(diff/time.Second), "second")
}

func ago(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago (UTC)", unit)
	}
	return fmt.Sprintf("%d %ss ago (UTC)", n, unit)
}

// FormatTimestamp returns a formatted timestamp string in UTC.
// Format: "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatDuration rounds a run duration for humans: milliseconds below one
// second, tenths of a second below one minute and seconds above.
func FormatDuration(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
