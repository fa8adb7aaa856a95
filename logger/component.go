package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/servicehub-client/types"
)

// componentLogger tags every entry with the component that wrote it.
type componentLogger struct {
	base   types.Logger
	fields []zap.Field
}

func newComponentLogger(base types.Logger, name string) *componentLogger {
	return &componentLogger{base: base, fields: []zap.Field{zap.String("component", name)}}
}

func (c *componentLogger) with(fields []zap.Field) []zap.Field {
	out := make([]zap.Field, 0, len(c.fields)+len(fields))
	out = append(out, c.fields...)
	return append(out, fields...)
}

func (c *componentLogger) Error(msg string, fields ...zap.Field) {
	c.base.Error(msg, c.with(fields)...)
}

func (c *componentLogger) ErrorWithErrStack(msg string, err error, fields ...zap.Field) {
	c.base.ErrorWithErrStack(msg, err, c.with(fields)...)
}

func (c *componentLogger) Warn(msg string, fields ...zap.Field) {
	c.base.Warn(msg, c.with(fields)...)
}

func (c *componentLogger) Info(msg string, fields ...zap.Field) {
	c.base.Info(msg, c.with(fields)...)
}

func (c *componentLogger) Debug(msg string, fields ...zap.Field) {
	c.base.Debug(msg, c.with(fields)...)
}

func (c *componentLogger) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {
	c.base.Log(lvl, msg, c.with(fields)...)
}
