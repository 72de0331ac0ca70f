package middleware

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 problem details object. Handler errors go through
// internal/errors; this type serves failures raised inside the middleware
// layer itself (panics, rate limits, timeouts, rejected bodies).
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Trace  string `json:"trace_id,omitempty"`
}

// Render writes the problem as application/problem+json.
func (p Problem) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	return json.NewEncoder(w).Encode(p)
}

// problemTypes maps the statuses middleware can emit to their type URIs.
var problemTypes = map[int]string{
	http.StatusBadRequest:            "/errors/invalid-request",
	http.StatusRequestEntityTooLarge: "/errors/payload-too-large",
	http.StatusUnsupportedMediaType:  "/errors/unsupported-media-type",
	http.StatusTooManyRequests:       "/errors/rate-limit-exceeded",
	http.StatusInternalServerError:   "/errors/internal-server-error",
	http.StatusBadGateway:            "/errors/source-unavailable",
	http.StatusServiceUnavailable:    "/errors/service-unavailable",
	http.StatusGatewayTimeout:        "/errors/gateway-timeout",
}

// ProblemFromStatus builds a Problem for one of the statuses the middleware
// layer emits. Statuses outside that set fall back to /errors/unknown.
func ProblemFromStatus(status int, detail string, traceID string) Problem {
	problemType, ok := problemTypes[status]
	if !ok {
		problemType = "/errors/unknown"
	}
	title := http.StatusText(status)
	if title == "" {
		title = "Unknown Error"
	}

	return Problem{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
		Trace:  traceID,
	}
}
