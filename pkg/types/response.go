// Package types holds the JSON envelopes shared by every API response.
package types

// RequestIDHeader carries the correlation id echoed on every response.
const RequestIDHeader = "X-Request-Id"

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a failed request. RequestID lets clients
// quote the failure when reporting it.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
