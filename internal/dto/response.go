package dto

// SubmitUploadResponse is returned when an upload was accepted.
type SubmitUploadResponse struct {
	Name      string `json:"name"`
	Queued    bool   `json:"queued"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status"`
}

// UploadControlResponse acknowledges a control request.
type UploadControlResponse struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}
