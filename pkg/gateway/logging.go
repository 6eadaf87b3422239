package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

type loggingExecutor struct {
	next Executor
	log  *logrus.Entry
}

// WithLogging wraps next so statements outside the dialect are logged as
// warnings with their text, backend failures as errors, and every statement
// at debug level with its duration.
func WithLogging(next Executor, log *logrus.Entry) Executor {
	return &loggingExecutor{next: next, log: log}
}

func (l *loggingExecutor) Execute(ctx context.Context, text string, params ...query.Value) (query.RowSet, error) {
	start := time.Now()
	rows, err := l.next.Execute(ctx, text, params...)
	entry := l.log.WithField("duration", time.Since(start))

	switch {
	case err == nil:
		entry.WithField("rows", len(rows)).Debug("statement executed")
	case apierror.IsStatementError(err):
		entry.WithError(err).WithField("statement", text).Warn("statement not supported by this adapter")
	case errors.Is(err, apierror.ErrUniqueViolation):
		entry.WithError(err).Debug("statement rejected by unique constraint")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		entry.WithError(err).Info("statement canceled")
	default:
		entry.WithError(err).Error("statement failed")
	}
	return rows, err
}
