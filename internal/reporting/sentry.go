// Package reporting sends unexpected errors to Sentry
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Amund211/tilecore/internal/config"
	"github.com/Amund211/tilecore/internal/logging"
	"github.com/getsentry/sentry-go"
)

var uuidRx = regexp.MustCompile(`[0-9a-f]{8}-?([0-9a-f]{4}-?){3}[0-9a-f]{12}`)
var hostRx = regexp.MustCompile(`\[:{0,2}([0-9a-f]{0,4}:?){1,8}\]:\d+`)
var tileRx = regexp.MustCompile(`\b\d{1,2}/\d+/\d+(@-?\d+)?`)

// sanitizeError removes the parts of an error message that vary between occurrences of the
// same failure, so they are grouped together
func sanitizeError(err string) string {
	err = uuidRx.ReplaceAllString(err, "<uuid>")
	err = hostRx.ReplaceAllString(err, "<host>")
	err = tileRx.ReplaceAllString(err, "<tile>")
	return err
}

func Report(ctx context.Context, err error, extras ...map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	logger := logging.FromContext(ctx)
	if hub == nil {
		logger.WarnContext(ctx, "Failed to get Sentry hub from context", "error", err, "extras", extras)
		return
	}

	logger.ErrorContext(
		ctx,
		"Reporting error to Sentry",
		slog.String("error", fmt.Sprint(err)),
		slog.Any("extras", extras),
	)

	hub.WithScope(func(scope *sentry.Scope) {
		meta := MetaFromContext(ctx)
		scope.SetTags(meta.tags)
		for key, value := range meta.extras {
			scope.SetExtra(key, value)
		}
		if !meta.startedAt.IsZero() {
			scope.SetExtra("secondsSinceStart", time.Since(meta.startedAt).Seconds())
		}

		for _, extra := range extras {
			for key, value := range extra {
				scope.SetExtra(key, value)
			}
		}

		if err == nil {
			err = errors.New("no error provided")
		}

		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		hub.CaptureException(err)
	})
}

// InitSentry returns a function that attaches a fresh hub to a context, and a flush function
// to call before exiting
func InitSentry(sentryDSN string, environment string) (func(context.Context) context.Context, func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sentryDSN,
		Environment:      environment,
		EnableTracing:    true,
		TracesSampleRate: 1.0 / 100.0,
	})
	if err != nil {
		return nil, nil, err
	}

	hubContext := func(ctx context.Context) context.Context {
		ctx = sentry.SetHubOnContext(ctx, sentry.CurrentHub().Clone())
		return setStartedAtInContext(ctx, time.Now())
	}

	flush := func() {
		sentry.Flush(5 * time.Second)
	}

	return hubContext, flush, nil
}

func NewSentryOrMock(config config.Config) (func(context.Context) context.Context, func(), error) {
	if config.SentryDSN() != "" {
		return InitSentry(config.SentryDSN(), config.Environment())
	}

	if config.IsDevelopment() {
		hubContext := func(ctx context.Context) context.Context {
			return setStartedAtInContext(ctx, time.Now())
		}
		flush := func() {}
		return hubContext, flush, nil
	}

	return nil, nil, fmt.Errorf("missing Sentry DSN in non-development environment")
}
