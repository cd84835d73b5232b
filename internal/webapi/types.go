package webapi

// HealthResponse is the /api/health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// CreateSessionRequest is the POST /api/sessions body.
type CreateSessionRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// RenameSessionRequest is the PATCH /api/sessions/{id} body.
type RenameSessionRequest struct {
	Name string `json:"name"`
}
