package logger

import (
	"time"
)

// OperationLogger logs the steps of one named operation with shared fields
// and reports its total duration on completion.
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
	now       func() time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	ol := &OperationLogger{
		logger:    OrGlobal(logger),
		operation: operation,
		fields:    Fields{"operation": operation},
		now:       time.Now,
	}
	ol.startTime = ol.now()

	ol.logger.WithFields(ol.fields).Info("Starting operation")
	return ol
}

// WithField adds a field to every subsequent entry of the operation.
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string, extra Fields) {
	fields := ol.merged(extra)
	fields["step"] = step
	ol.logger.WithFields(fields).Info("Operation step")
}

// Warning logs a warning during the operation
func (ol *OperationLogger) Warning(message string, extra Fields) {
	ol.logger.WithFields(ol.merged(extra)).Warn(message)
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) time.Duration {
	d := ol.now().Sub(ol.startTime)
	fields := ol.merged(Fields{"duration": d.String(), "status": "success"})
	ol.logger.WithFields(fields).Info(message)
	return d
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) time.Duration {
	d := ol.now().Sub(ol.startTime)
	fields := ol.merged(Fields{"duration": d.String(), "status": "error"})
	ol.logger.WithError(err).WithFields(fields).Error(message)
	return d
}

func (ol *OperationLogger) merged(extra Fields) Fields {
	out := make(Fields, len(ol.fields)+len(extra))
	for k, v := range ol.fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
