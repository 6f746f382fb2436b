package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry wraps a handler with OpenTelemetry HTTP instrumentation: a span
// per request plus duration and size metrics.
func Telemetry(next http.Handler) http.Handler {
	return otelhttp.NewMiddleware("florin-api")(next)
}
