package storage

import (
	"io"

	"github.com/sirupsen/logrus"
)

// newSilentLogger returns a logger that discards all output, used as the
// default when a Config does not supply one. Callers that want lifecycle
// events (sending-request, received-response, retry, location failover) set
// Config.Logger to a *logrus.Logger of their own.
func newSilentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// eventFields builds the structured fields shared by all lifecycle log
// lines so callers filtering on "event" see a consistent vocabulary.
func eventFields(event string, ctx *ExecutionContext) logrus.Fields {
	f := logrus.Fields{
		"event": event,
	}
	if ctx != nil {
		f["operationId"] = ctx.OperationID
		f["attempt"] = ctx.AttemptCount
		f["location"] = ctx.CurrentLocation
	}
	return f
}
