package logger

import (
	"log"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// New returns a stdlib *log.Logger that writes through base at the given
// level, tagged with component. Used for libraries that only accept *log.Logger.
func New(base *slog.Logger, component string, level slog.Level) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), level)
}

// Cron adapts slog to the cron.Logger interface.
type Cron struct {
	log *slog.Logger
}

var _ cron.Logger = Cron{}

func NewCron(base *slog.Logger) Cron {
	if base == nil {
		base = slog.Default()
	}
	return Cron{log: base.With("component", "cron")}
}

func (c Cron) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c Cron) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
