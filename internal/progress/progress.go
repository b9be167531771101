// Package progress draws a one-line status for long poll runs.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	barWidth        = 40
	defaultThrottle = 100 * time.Millisecond
)

// Bar tracks exchanges against a known total. A zero total draws a running
// counter instead of a bar.
type Bar struct {
	out         io.Writer
	description string
	total       int
	done        int
	failed      int
	start       time.Time
	lastDraw    time.Time
	throttle    time.Duration
}

// NewBar creates a bar writing to out.
func NewBar(out io.Writer, total int, description string) *Bar {
	now := time.Now()
	return &Bar{
		out:         out,
		description: description,
		total:       total,
		start:       now,
		lastDraw:    now,
		throttle:    defaultThrottle,
	}
}

// Record counts one exchange.
func (b *Bar) Record(ok bool) {
	b.done++
	if !ok {
		b.failed++
	}
	b.draw(false)
}

// Done returns the exchanges recorded so far.
func (b *Bar) Done() int { return b.done }

// Failed returns the failed exchanges recorded so far.
func (b *Bar) Failed() int { return b.failed }

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	b.draw(true)
	fmt.Fprint(b.out, "\n")
}

func (b *Bar) draw(force bool) {
	now := time.Now()
	if !force && now.Sub(b.lastDraw) < b.throttle && (b.total == 0 || b.done < b.total) {
		return
	}
	b.lastDraw = now
	fmt.Fprint(b.out, "\r"+b.line(now.Sub(b.start)))
}

func (b *Bar) line(elapsed time.Duration) string {
	var sb strings.Builder
	if b.description != "" {
		sb.WriteString(b.description)
		sb.WriteString(" ")
	}
	if b.total <= 0 {
		fmt.Fprintf(&sb, "%d exchanges, %d failed | Elapsed: %s", b.done, b.failed, formatDuration(elapsed))
		return sb.String()
	}

	percent := float64(b.done) / float64(b.total) * 100
	filled := b.done * barWidth / b.total
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat("-", barWidth-filled-1)
	}
	fmt.Fprintf(&sb, "[%s] %d/%d (%.1f%%) %d failed | Elapsed: %s", bar, b.done, b.total, percent, b.failed, formatDuration(elapsed))

	if b.done > 0 && b.done < b.total && elapsed > 0 {
		per := elapsed / time.Duration(b.done)
		fmt.Fprintf(&sb, " | ETA: %s", formatDuration(per*time.Duration(b.total-b.done)))
	}
	return sb.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
