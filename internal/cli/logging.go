package cli

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

func verbosityLevel(n int) log.Level {
	switch {
	case n <= 0:
		return log.WarnLevel
	case n == 1:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}

// setupLogging configures the standard logger. The TUI owns the terminal,
// so log lines are dropped while it runs.
func setupLogging(verbose int, tui bool) {
	log.SetLevel(verbosityLevel(verbose))
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if tui {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(os.Stderr)
}
