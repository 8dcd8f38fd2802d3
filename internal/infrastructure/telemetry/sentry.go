package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	log "github.com/sirupsen/logrus"
)

// InitSentry reports errors logged at error level or above to Sentry. The
// returned function flushes pending events and must be called on exit.
func InitSentry(dsn, release string) (func(), error) {
	opts := sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      "prod",
		AttachStacktrace: true,
		Release:          release,
	}
	if err := sentry.Init(opts); err != nil {
		return nil, err
	}

	levels := []log.Level{log.ErrorLevel, log.FatalLevel, log.PanicLevel}
	hook, err := sentrylogrus.New(levels, opts)
	if err != nil {
		return nil, err
	}
	log.AddHook(hook)

	return func() {
		sentry.Flush(5 * time.Second)
		hook.Flush(5 * time.Second)
	}, nil
}
