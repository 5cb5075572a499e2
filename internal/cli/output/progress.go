package output

import (
	"fmt"
	"io"
	"strings"
)

// ProgressBar renders a fixed-width completion bar such as
// "Onboarding [################----------------] 2/6 (33%)".
type ProgressBar struct {
	Title string
	Width int
}

// NewProgressBar creates a progress bar 32 cells wide.
func NewProgressBar(title string) *ProgressBar {
	return &ProgressBar{Title: title, Width: 32}
}

// Render writes the bar for done of total followed by a newline.
func (p *ProgressBar) Render(w io.Writer, done, total int) error {
	if total <= 0 {
		total = 1
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	width := p.Width
	if width <= 0 {
		width = 32
	}

	filled := width * done / total
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	percent := 100 * done / total

	title := p.Title
	if title != "" {
		title += " "
	}
	_, err := fmt.Fprintf(w, "%s[%s] %d/%d (%d%%)\n", title, bar, done, total, percent)
	return err
}
