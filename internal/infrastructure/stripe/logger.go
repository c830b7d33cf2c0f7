package stripe

import (
	"fmt"

	"github.com/Zhima-Mochi/terminal-gateway/internal/observability"
	stripeapi "github.com/stripe/stripe-go/v76"
)

// leveledLogger routes SDK log output through the service logger.
type leveledLogger struct {
	log observability.Logger
}

var _ stripeapi.LeveledLoggerInterface = (*leveledLogger)(nil)

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.log.Debug("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.log.Error("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}
