package upscale

import (
	"context"
	"log/slog"
)

// nopHandler is a slog.Handler that discards every record.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var nopLogger = slog.New(nopHandler{})

// logger returns the pipeline logger, or one that discards everything when
// none is set.
func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return nopLogger
	}
	return p.Logger
}
