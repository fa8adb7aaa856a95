package types

// Envelope is the {success, message} wrapper shared by every response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (e Envelope) Succeeded() bool { return e.Success }

func (e Envelope) EnvelopeMessage() string { return e.Message }

// Enveloped is satisfied by every response that embeds Envelope.
type Enveloped interface {
	Succeeded() bool
	EnvelopeMessage() string
}

// ErrorBody is the shape of a non-2xx body.
type ErrorBody struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}
