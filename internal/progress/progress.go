// ABOUTME: Renders a job's advisory progress as a fixed-width text bar.
// ABOUTME: Pure formatting used by the /status reply.

package progress

import (
	"fmt"
	"strings"
)

const cells = 10

// Render formats progress as a ten-cell bar followed by the percentage, for
// example "[███░░░░░░░] 30%". Input is clamped to [0, 100]; the filled cell
// count is monotonic in progress.
func Render(progress int) string {
	p := progress
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	filled := p / 10
	return fmt.Sprintf("[%s%s] %d%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", cells-filled),
		p,
	)
}
