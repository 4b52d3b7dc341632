package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var colorOnce sync.Once

// ConfigureColors picks a color profile once per process: the terminal's
// own when stderr is a TTY, plain ASCII under CI, dumb terminals or
// NO_COLOR.
func ConfigureColors() {
	colorOnce.Do(func() {
		if colorsAllowed() {
			lipgloss.SetColorProfile(termenv.ColorProfile())
			return
		}
		lipgloss.SetColorProfile(termenv.Ascii)
	})
}

func colorsAllowed() bool {
	if os.Getenv("NO_COLOR") != "" || envTruthy("CI") {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
