package log

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RequestLogFormatter implements chi's middleware.LogFormatter using logrus
type RequestLogFormatter struct {
	*logrus.Entry // Embed logrus Entry
}

// NewRequestLogFormatter creates a new formatter
func NewRequestLogFormatter(entry *logrus.Entry) *RequestLogFormatter {
	return &RequestLogFormatter{entry}
}

// Middleware returns the chi request logger backed by this formatter
func (f *RequestLogFormatter) Middleware() func(http.Handler) http.Handler {
	return middleware.RequestLogger(f)
}

// NewLogEntry is called by chi at the start of every request
func (f *RequestLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	fields := logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"remote_addr": r.RemoteAddr,
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		fields["request_id"] = reqID
	}
	return &requestLogEntry{entry: f.Entry.WithFields(fields)}
}

type requestLogEntry struct {
	entry *logrus.Entry
}

// Write logs the finished request; 5xx responses are logged as errors
func (e *requestLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	entry := e.entry.WithFields(logrus.Fields{
		"status":   status,
		"bytes":    bytes,
		"duration": elapsed,
	})
	switch {
	case status >= 500:
		entry.Error("Request failed")
	case status >= 400:
		entry.Warn("Request rejected")
	default:
		entry.Info("Request handled")
	}
}

// Panic logs a handler panic recovered by middleware.Recoverer
func (e *requestLogEntry) Panic(v interface{}, stack []byte) {
	e.entry.WithFields(logrus.Fields{
		"panic_info":  v,
		"stack_trace": string(stack),
	}).Error("PANIC Recovered in HTTP handler")
}
