package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// AccessLog returns a Processor that logs one line per request after the
// rest of the chain has run.
func AccessLog(logger *slog.Logger) Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		rec := &statusRecorder{ResponseWriter: w}
		started := time.Now()
		err := next(rec, r)

		status := rec.status
		if err != nil {
			// The handler writes the error response after the chain returns.
			status = statusOf(err)
		}
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", status,
			"bytes", rec.bytes,
			"duration", time.Since(started),
		)
		return err
	})
}

func statusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) && he.Status >= 100 {
		return he.Status
	}
	return http.StatusInternalServerError
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
