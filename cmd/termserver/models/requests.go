package models

// TaskIntegrityCheckRequest selects the extension baseline for the
// task-differential check
type TaskIntegrityCheckRequest struct {
	ExtensionMainPath string `json:"extensionMainPath"`
}

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Error string `json:"error"`
}
