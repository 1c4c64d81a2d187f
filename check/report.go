package check

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r Result)

func (f ReporterFunc) Report(ctx context.Context, r Result) { f(ctx, r) }

// MultiReporter fans a result out to every reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, r Result) {
	for _, rep := range m {
		rep.Report(ctx, r)
	}
}

// LogReporter writes one structured line per result.
type LogReporter struct {
	Logger *slog.Logger
}

func (l LogReporter) Report(ctx context.Context, r Result) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("group", r.Group),
		slog.String("check", r.Name),
		slog.String("outcome", string(r.Outcome)),
		slog.Duration("elapsed", r.Duration),
	}
	if r.Message != "" {
		attrs = append(attrs, slog.String("message", r.Message))
	}
	if len(r.Observed) > 0 {
		observed := make([]any, 0, len(r.Observed))
		for _, k := range slices.Sorted(maps.Keys(r.Observed)) {
			observed = append(observed, slog.Any(k, r.Observed[k]))
		}
		attrs = append(attrs, slog.Group("observed", observed...))
	}

	level := slog.LevelInfo
	switch r.Outcome {
	case OutcomeFail, OutcomeError:
		level = slog.LevelError
	case OutcomeSkip:
		// condition not observed in this sample
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "check finished", attrs...)
}
