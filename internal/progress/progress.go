// Package progress renders transfer status text and throttles how often it is
// pushed to the chat.
package progress

import (
	"fmt"
	"strings"
	"time"
)

const (
	PhaseDownload = "Downloading"
	PhaseUpload   = "Uploading"

	barSlots = 10
)

var byteUnits = []string{"", "Ki", "Mi", "Gi", "Ti"}

// Snapshot is one observation of a running transfer. Complete marks the
// final observation, which always renders as 100%.
type Snapshot struct {
	Phase    string
	Done     int64
	Total    int64
	Elapsed  time.Duration
	Complete bool
}

// Percent is done/total as 0..100. An unknown total reports 0.
func Percent(done, total int64) float64 {
	switch {
	case total <= 0:
		return 0
	case done >= total:
		return 100
	case done <= 0:
		return 0
	}
	return float64(done) * 100 / float64(total)
}

// Speed returns bytes per second, 0 before any time has passed.
func Speed(done int64, elapsed time.Duration) float64 {
	if elapsed <= 0 || done <= 0 {
		return 0
	}
	return float64(done) / elapsed.Seconds()
}

// ETA is the remaining time at the current average speed. It is 0 when the
// speed is unknown and never negative.
func ETA(done, total int64, elapsed time.Duration) time.Duration {
	speed := Speed(done, elapsed)
	remaining := total - done
	if speed <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / speed * float64(time.Second))
}

// HumanBytes formats n in powers of 1024 with two decimals, e.g. "1.50 MiB".
func HumanBytes(n float64) string {
	if n < 0 {
		n = 0
	}
	unit := 0
	for n >= 1024 && unit < len(byteUnits)-1 {
		n /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %sB", n, byteUnits[unit])
}

// HumanDuration formats d as "1d, 2h, 3m, 4s", omitting zero parts.
func HumanDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs <= 0 {
		return "0s"
	}
	parts := make([]string, 0, 4)
	for _, u := range []struct {
		size   int64
		suffix string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}, {1, "s"}} {
		if v := secs / u.size; v > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", v, u.suffix))
			secs %= u.size
		}
	}
	return strings.Join(parts, ", ")
}

func Bar(percent float64) string {
	filled := int(percent / (100 / barSlots))
	if filled < 0 {
		filled = 0
	}
	if filled > barSlots {
		filled = barSlots
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barSlots-filled)
}

// Render produces the status message text for s.
func Render(s Snapshot) string {
	pct := Percent(s.Done, s.Total)
	if s.Complete {
		pct = 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", s.Phase)
	fmt.Fprintf(&b, "%s %.2f%%\n\n", Bar(pct), pct)
	fmt.Fprintf(&b, "Progress: %s of %s\n", HumanBytes(float64(s.Done)), HumanBytes(float64(s.Total)))
	fmt.Fprintf(&b, "Speed: %s/s\n", HumanBytes(Speed(s.Done, s.Elapsed)))
	fmt.Fprintf(&b, "ETA: %s\n", HumanDuration(ETA(s.Done, s.Total, s.Elapsed)))
	fmt.Fprintf(&b, "Elapsed: %s", HumanDuration(s.Elapsed))
	return b.String()
}
