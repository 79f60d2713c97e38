package dtos

// ApplicationCreateRequest creates a tracked application.
type ApplicationCreateRequest struct {
	Company string `json:"company" binding:"required"`
	Role    string `json:"role" binding:"required"`

	// Optional fields
	JobURL     string  `json:"job_url"`
	Status     string  `json:"status"` // defaults to "APPLIED" if empty
	JDSnapshot *string `json:"jd_snapshot"`
}

// EvidenceCreateRequest stores one evidence bullet.
type EvidenceCreateRequest struct {
	Title string `json:"title"`
	Text  string `json:"text" binding:"required"`
}

// APIError is the error half of the response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the uniform JSON response shape: exactly one of Data and Error
// is set.
type Envelope struct {
	Data  any       `json:"data"`
	Error *APIError `json:"error"`
}

func DataEnvelope(data any) Envelope {
	return Envelope{Data: data}
}

func ErrorEnvelope(code, message string) Envelope {
	return Envelope{Error: &APIError{Code: code, Message: message}}
}
