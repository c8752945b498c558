package unarr

import (
	"os"

	"github.com/sirupsen/logrus"
)

// pkgLog is the package-wide diagnostic logger. It stays silent by default;
// setting RARINDEX_DEBUG=1 (the same env var the teacher gated its stderr
// traces behind) bumps it to debug level. Call sites log BadCrc-warn,
// BadHeader-skip, and the end of a RAR block scan at debug so the common
// case costs nothing. VM filter fingerprint selection is not logged.
var pkgLog = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetLevel(logrus.WarnLevel)
	if os.Getenv("RARINDEX_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}
