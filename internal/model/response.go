package model

// ListResponse is the standard envelope for list endpoints, wrapping results
// in a "resource" array with optional truncation metadata.
type ListResponse struct {
	Resource []map[string]interface{} `json:"resource"`
	Meta     *ResponseMeta            `json:"meta,omitempty"`
}

// ResponseMeta describes how much of the underlying collection was returned.
type ResponseMeta struct {
	Count   int `json:"count"`
	Total   int `json:"total"`
	Limit   int `json:"limit,omitempty"`
	Omitted int `json:"omitted"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ValidateResponse is the body returned for a usable key. Field names are a
// compatibility surface shared with existing client integrations, so
// expires_at is null rather than omitted for perpetual keys.
type ValidateResponse struct {
	Valid     bool       `json:"valid"`
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
	ExpiresAt *Timestamp `json:"expires_at"`
}

// ValidateError is the body returned when validation fails.
type ValidateError struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}
