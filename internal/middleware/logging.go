// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// LogMiddleware logs each request's method, path, status and duration.
// Heartbeat probes are logged at debug.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   status,
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			})
			switch {
			case status >= 500:
				entry.Error("HTTP request")
			case r.URL.Path == "/ping":
				entry.Debug("HTTP request")
			default:
				entry.Info("HTTP request")
			}
		})
	}
}

// LogRoomJoin logs a player's game connection being accepted.
func LogRoomJoin(logger *logrus.Logger, roomID, playerID, remoteAddr string) {
	logger.WithFields(logrus.Fields{
		"room":   roomID,
		"player": playerID,
		"remote": remoteAddr,
	}).Info("player joined room")
}

// LogRoomLeave logs a player's game connection ending. err is the read error
// that ended it, if any.
func LogRoomLeave(logger *logrus.Logger, roomID, playerID string, err error) {
	fields := logrus.Fields{
		"room":   roomID,
		"player": playerID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("player left room")
}
