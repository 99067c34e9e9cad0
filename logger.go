package confidence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// restySlogLogger adapts a [slog.Logger] to the [resty.Logger] interface so
// resty's own transport logging flows through the client's logger.
type restySlogLogger struct {
	logger *slog.Logger
}

func (s restySlogLogger) Errorf(format string, v ...interface{}) {
	s.logger.Error(fmt.Sprintf(format, v...))
}

func (s restySlogLogger) Warnf(format string, v ...interface{}) {
	s.logger.Warn(fmt.Sprintf(format, v...))
}

func (s restySlogLogger) Debugf(format string, v ...interface{}) {
	s.logger.Debug(fmt.Sprintf(format, v...))
}

// httpCallContextKey carries per-request logging state from the request
// middleware to the response middleware.
type httpCallContextKey struct{}

type httpCall struct {
	logger  *slog.Logger
	started time.Time
}

func newRestyLogRequestMiddleware(logger *slog.Logger) resty.RequestMiddleware {
	return func(c *resty.Client, req *resty.Request) error {
		call := &httpCall{
			logger: logger.WithGroup("http").With(
				"method", req.Method,
				"url", req.URL,
			),
			started: time.Now(),
		}
		call.logger.Debug("request")
		req.SetContext(context.WithValue(req.Context(), httpCallContextKey{}, call))
		return nil
	}
}

func newRestyLogResponseMiddleware(logger *slog.Logger) resty.ResponseMiddleware {
	return func(client *resty.Client, resp *resty.Response) error {
		call, _ := resp.Request.Context().Value(httpCallContextKey{}).(*httpCall)
		if call == nil {
			call = &httpCall{logger: logger, started: time.Now()}
		}

		respLogger := call.logger.With(
			slog.Int("status", resp.StatusCode()),
			slog.Duration("duration", time.Since(call.started)),
			slog.Int64("content_length", resp.Size()),
		)
		if resp.IsError() {
			respLogger.Error("error response")
		} else {
			respLogger.Debug("response")
		}
		return nil
	}
}
