package types

// Envelope status flags.
const (
	StatusFailure = 0
	StatusSuccess = 1
)

// Envelope is the body shape shared by every endpoint.
type Envelope struct {
	Status  int       `json:"status"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries the machine-readable half of a failure envelope.
type APIError struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
