package apiclient

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"zapp/pkg/logging"
)

// Logger adapts pkg/logging to retryablehttp.LeveledLogger.
type Logger struct {
	Subsystem string
}

var _ retryablehttp.LeveledLogger = Logger{}

func (l Logger) Error(msg string, keysAndValues ...interface{}) {
	logging.Error(l.Subsystem, nil, "%s", l.format(msg, keysAndValues))
}

func (l Logger) Info(msg string, keysAndValues ...interface{}) {
	logging.Info(l.Subsystem, "%s", l.format(msg, keysAndValues))
}

func (l Logger) Debug(msg string, keysAndValues ...interface{}) {
	logging.Debug(l.Subsystem, "%s", l.format(msg, keysAndValues))
}

func (l Logger) Warn(msg string, keysAndValues ...interface{}) {
	logging.Warn(l.Subsystem, "%s", l.format(msg, keysAndValues))
}

func (Logger) format(msg string, keysAndValues []interface{}) string {
	if len(keysAndValues) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}
