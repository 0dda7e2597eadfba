// logging.go - structured logging for the lanes package.
//
// Package-level configuration, following the same shape as this repository's
// own eventloop package (see eventloop/logging.go): a global, swappable
// logger, defaulting to a no-op so the library stays silent unless a caller
// opts in. Rather than a bespoke Logger interface, lanes uses this
// repository's own structured-logging facade, logiface, with the zerolog
// backend (module github.com/joeycumines/izerolog) as the concrete sink a
// caller is expected to plug in.
package lanes

import (
	"sync"

	"github.com/joeycumines/logiface"
	izerolog "github.com/joeycumines/izerolog"
	"github.com/rs/zerolog"
)

var globalLogger struct {
	sync.RWMutex
	l *logiface.Logger[*izerolog.Event]
}

func init() {
	globalLogger.l = noopLogger()
}

// SetLogger installs the package-level structured logger used for lane
// lifecycle and universe-shutdown diagnostics. Passing nil installs
// a no-op logger.
func SetLogger(l *logiface.Logger[*izerolog.Event]) {
	if l == nil {
		l = noopLogger()
	}
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.l = l
}

// NewZerologLogger is a convenience constructor wiring a [zerolog.Logger]
// into the logiface facade this package expects, at the given level.
func NewZerologLogger(z zerolog.Logger, level logiface.Level) *logiface.Logger[*izerolog.Event] {
	return izerolog.L.New(
		izerolog.L.WithZerolog(z),
		izerolog.L.WithLevel(level),
	)
}

func noopLogger() *logiface.Logger[*izerolog.Event] {
	return izerolog.L.New(izerolog.L.WithLevel(logiface.LevelDisabled))
}

func getLogger() *logiface.Logger[*izerolog.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.l
}
