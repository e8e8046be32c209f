package api

// ErrorResponse is the body of every non-2xx response (spec §4.1 "Error"
// shapes, §6 "400 with {error, message}").
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FieldErrorResponse is returned for InvalidPayload failures, carrying
// the per-field detail the schema validator produced.
type FieldErrorResponse struct {
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// HealthResponse is the body of GET /health (spec §6).
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Version   string         `json:"version"`
	Services  HealthServices `json:"services"`
}

// HealthServices reports the three subsystems spec §6 names.
type HealthServices struct {
	Database  string `json:"database"`
	Queue     string `json:"queue"`
	MLService string `json:"ml_service"`
}
