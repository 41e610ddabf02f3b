package webhook

import "github.com/mattjoyce/messenger-wemo/internal/messenger"

// Submitter accepts a verified, decoded envelope for asynchronous handling.
// An error means the envelope was not queued and the platform should
// redeliver it.
type Submitter interface {
	Submit(env *messenger.Envelope) error
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// AppSecret keys the HMAC over each callback body.
	AppSecret string

	// VerifyToken answers the platform's subscription handshake.
	VerifyToken string

	// SignatureHeader carries "sha1=<hex>" or "sha256=<hex>".
	SignatureHeader string

	// MaxBodySize is the maximum accepted callback size in bytes (default: 1MB).
	MaxBodySize int64
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-Hub-Signature"

	// EventReceived is the acknowledgement body the platform expects.
	EventReceived = "EVENT_RECEIVED"
)
