// Package handlers contains HTTP handler interfaces and implementations.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// MiddlewareFunc wraps an http.Handler with cross-cutting behavior.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middleware so that the first argument runs outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		wrapped := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			wrapped = middlewares[i](wrapped)
		}
		return wrapped
	}
}

// ChainHandler applies a middleware chain to a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}

// TimeoutMiddleware enforces a per-request deadline. Handlers observe the
// deadline through the request context; if one overruns it, the client gets
// a 504 and the handler goroutine is left to finish on its own.
func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			finished := make(chan struct{})
			go func() {
				defer close(finished)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-finished:
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					writeMiddlewareError(w, http.StatusGatewayTimeout,
						"timeout", "Request deadline exceeded")
				}
			}
		})
	}
}

// SecurityHeadersMiddleware sets the response headers expected of a
// JSON-only API that is never rendered in a browser frame.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware rejects oversized bodies. Activity reports are
// a few hundred bytes, so anything near the limit is a misbehaving client.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeMiddlewareError(w, http.StatusRequestEntityTooLarge,
					"payload_too_large", "Request body too large")
				return
			}

			// Declared length can lie; cap the reader as well.
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// writeMiddlewareError emits a minimal JSON error without importing the
// parent package's response envelope.
func writeMiddlewareError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"error":{"code":%q,"message":%q}}`, code, message)
}
