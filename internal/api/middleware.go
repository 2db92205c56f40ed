package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RequestIDHeader carries the caller's request id, echoed on the response.
	RequestIDHeader = "X-Request-ID"

	// TraceIDHeader returns the trace id the request was evaluated under.
	TraceIDHeader = "X-Trace-ID"
)

type scopeKey struct{}

// requestScope is what the middleware attaches to each request context.
type requestScope struct {
	requestID string
	traceID   string
	logger    *slog.Logger
}

var tracer = otel.Tracer("kestrel-api")

// withRequestScope opens a server span per request, resolves the request and
// trace ids and logs the completed request. Handlers reach the request
// logger through loggerFrom.
func withRequestScope(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx, span := tracer.Start(r.Context(), "kestrel "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("kestrel.request_id", requestID),
				),
			)
			defer span.End()

			// No exporter means no valid trace id; decisions are then traced by request id.
			traceID := requestID
			if sc := span.SpanContext(); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}

			scope := &requestScope{
				requestID: requestID,
				traceID:   traceID,
				logger:    base.With("request_id", requestID, "trace_id", traceID),
			}
			ctx = context.WithValue(ctx, scopeKey{}, scope)

			w.Header().Set(RequestIDHeader, requestID)
			w.Header().Set(TraceIDHeader, traceID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			route := r.URL.Path
			if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
				span.SetName("kestrel " + r.Method + " " + route)
			}
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			scope.logger.Log(ctx, level, "http request",
				"method", r.Method,
				"route", route,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// recoverPanics turns a handler panic into a 500 JSON response.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			loggerFrom(r.Context()).Error("panic recovered",
				"panic", rv,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func scopeFrom(ctx context.Context) *requestScope {
	s, _ := ctx.Value(scopeKey{}).(*requestScope)
	return s
}

// TraceIDFrom returns the trace id of the request ctx belongs to.
func TraceIDFrom(ctx context.Context) string {
	if s := scopeFrom(ctx); s != nil {
		return s.traceID
	}
	return ""
}

// loggerFrom returns the request logger, or the default logger outside a request.
func loggerFrom(ctx context.Context) *slog.Logger {
	if s := scopeFrom(ctx); s != nil {
		return s.logger
	}
	return slog.Default()
}
