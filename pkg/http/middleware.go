package xhttp

import (
	"strings"
	"time"

	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/valyala/fasthttp"
)

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if v := recover(); v != nil {
				ctx.Error(StatusText(StatusInternalServerError), StatusInternalServerError)
				logger.Error("[xhttp] panic recovered", "path", string(ctx.Path()), "panic", v)
			}
		}()
		next(ctx)
	}
}

// ProbeLogMiddleware logs ops requests. Scrapes and health probes arrive
// every few seconds, so successful requests to the quiet prefixes are not
// logged at all and the rest only at debug.
func ProbeLogMiddleware(slow time.Duration, quiet ...string) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			start := time.Now()
			next(ctx)

			status := ctx.Response.StatusCode()
			latency := time.Since(start)
			path := string(ctx.Path())
			if status < 400 && latency <= slow && hasAnyPrefix(path, quiet) {
				return
			}

			fields := []any{
				"status", status,
				"method", string(ctx.Method()),
				"path", path,
				"latency_ms", latency.Milliseconds(),
				"remote", ctx.RemoteIP().String(),
			}
			switch {
			case status >= 500:
				logger.Error("[xhttp] ops request failed", fields...)
			case status >= 400 || latency > slow:
				logger.Warn("[xhttp] ops request", fields...)
			default:
				logger.Debug("[xhttp] ops request", fields...)
			}
		}
	}
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
