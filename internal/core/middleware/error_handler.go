package middleware

import (
	"net/http"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
)

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// Flush keeps event streams working through the wrapper.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type ErrorHandler struct {
	handler http.Handler
	log     logger.Logger
}

// WithErrorHandler logs every response that ends in a client or server error.
func WithErrorHandler(log logger.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return &ErrorHandler{handler: h, log: log}
	}
}

func (eh *ErrorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}

	eh.handler.ServeHTTP(rec, r)

	fields := []logger.Field{
		logger.StringField("method", r.Method),
		logger.StringField("path", r.URL.Path),
		logger.IntField("status", rec.status),
		logger.DurationField("duration", time.Since(start)),
	}
	switch {
	case rec.status >= http.StatusInternalServerError:
		eh.log.Error("request failed", fields...)
	case rec.status >= http.StatusBadRequest:
		eh.log.Warn("request rejected", fields...)
	}
}
