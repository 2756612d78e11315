package supervisor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

var errAlwaysFails = errors.New("supervisor_test: induced failure")

// discardLogger is a no-op logger.Logger for tests that don't care about
// log output, avoiding the need to spin up a real *config.Config.
type discardLogger struct{}

func (discardLogger) Info(string, ...any)                          {}
func (discardLogger) Error(string, ...any)                         {}
func (discardLogger) Warn(string, ...any)                          {}
func (discardLogger) Debug(string, ...any)                         {}
func (discardLogger) InfoContext(context.Context, string, ...any)  {}
func (discardLogger) ErrorContext(context.Context, string, ...any) {}
func (discardLogger) WarnContext(context.Context, string, ...any)  {}
func (discardLogger) DebugContext(context.Context, string, ...any) {}
func (d discardLogger) With(...any) logger.Logger                  { return d }
func (discardLogger) ToSlog() *slog.Logger                         { return slog.Default() }
