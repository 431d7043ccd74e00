package fsock

import "go.uber.org/zap"

// logger wraps a *zap.Logger so every call site can pass a possibly-nil
// logger without checking for nil itself, following the field-based call
// style of kedacore/keda's pkg/scalers/sumologic/logs.go
// (logger.Debug("...", zap.String(...), zap.Int(...))).
type logger struct {
	z *zap.Logger
}

func newLogger(z *zap.Logger) logger {
	return logger{z: z}
}

func (l logger) debug(msg string, fields ...zap.Field) {
	if l.z != nil {
		l.z.Debug(msg, fields...)
	}
}

func (l logger) warn(msg string, fields ...zap.Field) {
	if l.z != nil {
		l.z.Warn(msg, fields...)
	}
}

func (l logger) error(msg string, fields ...zap.Field) {
	if l.z != nil {
		l.z.Error(msg, fields...)
	}
}
