package types

// APIResponse is the standard response for REST command execution.
type APIResponse struct {
	Success bool             `json:"success"`         // true if the command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    interface{}      `json:"data,omitempty"`  // Optional response data
}
