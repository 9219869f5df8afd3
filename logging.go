package nettle

import (
	"os"

	"github.com/joeycumines/logiface"
	"github.com/nettle-go/nettle/internal/rlog"
)

// internalLogger returns the package-wide diagnostic sink used by the
// pipeline tail, the leak detector, and poll-error paths. It defaults to a
// no-op so the library stays silent until a caller opts in, matching the
// teacher's own global-logger convention (its logging.go's
// getGlobalLogger/SetStructuredLogger pair) — rebuilt here on the
// logiface+stumpy stack the teacher's go.mod already declares but never
// wires up.
func internalLogger() *rlog.Logger {
	return rlog.Default()
}

// SetLogLevel redirects the package-wide diagnostic logger to stderr JSON
// at the given minimum level.
func SetLogLevel(level logiface.Level) {
	rlog.SetDefault(rlog.New(os.Stderr, level))
}

// DisableLogging silences the package-wide diagnostic logger.
func DisableLogging() {
	rlog.SetDefault(rlog.NewNoop())
}
