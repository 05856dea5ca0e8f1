package protocol

// REST response bodies for the intake surface. Error strings are part of the
// contract: intake forms match on them verbatim.
const (
	ErrMissingFields = "Missing name or idea."
	ErrInvalidPIN    = "Invalid PIN."
	ErrPINNotSet     = "Server missing EVENT_PIN."
)

// SubmitResponse is returned by POST /ideas and POST /header.
type SubmitResponse struct {
	OK    bool   `json:"ok"`
	Idea  *Idea  `json:"idea,omitempty"`
	Error string `json:"error,omitempty"`
}

// HeaderResponse is returned by GET /header.
type HeaderResponse struct {
	Header string `json:"header"`
}
