package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/Tk21111/drawsync/internal/logx"
	"go.uber.org/zap"
)

// statusWriter remembers the response status. It must stay hijackable or
// websocket upgrades behind it fail.
type statusWriter struct {
	http.ResponseWriter
	status   int
	upgraded bool
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	s.upgraded = true
	return hj.Hijack()
}

func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Logging binds a request logger into the context and logs every request
// once it is done. For upgraded requests that is when the socket closes.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := logx.With(r.Context(),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("ip", r.RemoteAddr),
		)

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))

		if sw.upgraded {
			logx.From(ctx).Info("ws_session",
				zap.Duration("duration", time.Since(start)),
			)
			return
		}

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		logx.From(ctx).Info("http_request",
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
