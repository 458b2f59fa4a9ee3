package msg

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar reports how many configurations have been evaluated so far.
type ProgressBar struct {
	Total      int
	Current    int
	Indent     int
	Start      time.Time
	W          io.Writer
	lastPrint  time.Time
	throbIndex int
	label      string
}

var throbbers = []rune{'|', '/', '-', '\\'}

func NewProgressBar(total int, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total:     total,
		Indent:    indent,
		Start:     time.Now(),
		W:         w,
		lastPrint: time.Now(),
	}
}

// Step marks one more unit of work as done. label names the unit that
// just finished and is shown next to the bar.
func (pb *ProgressBar) Step(label string) {
	pb.Current++
	pb.label = label

	if time.Since(pb.lastPrint) > 40*time.Millisecond || pb.Current == pb.Total {
		pb.print(false)
		pb.lastPrint = time.Now()
	}
}

func (pb *ProgressBar) print(finish bool) {
	width := 30
	percent := float64(pb.Current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(width)), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	fmt.Fprintf(pb.W, "\r%s%3d/%-3d [%s] %c %s\033[K",
		strings.Repeat(" ", pb.Indent),
		pb.Current,
		pb.Total,
		bar,
		throb,
		pb.label,
	)
}

func (pb *ProgressBar) Finish() {
	pb.label = fmt.Sprintf("done in %s", time.Since(pb.Start).Round(time.Millisecond))
	pb.print(true)
	fmt.Fprintln(pb.W)
}
