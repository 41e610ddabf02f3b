package messenger

import "encoding/json"

// Kind names an event variant in logs and on the event hub.
type Kind string

const (
	KindOptIn       Kind = "optin"
	KindMessage     Kind = "message"
	KindDelivery    Kind = "delivery"
	KindPostback    Kind = "postback"
	KindRead        Kind = "read"
	KindAccountLink Kind = "account_linking"
	KindUnknown     Kind = "unknown"
)

// Meta is carried by every event.
type Meta struct {
	SenderID    string
	RecipientID string
	Timestamp   int64
	// Fingerprint is a BLAKE3 digest of the event's raw JSON, stable across
	// redeliveries of the same event.
	Fingerprint string
}

// Event is the closed set of messaging events. Only types in this package
// implement it.
type Event interface {
	EventMeta() Meta
	Kind() Kind
	sealed()
}

type OptIn struct {
	Meta
	Ref     string
	UserRef string
}

type MessageEvent struct {
	Meta
	Message Message
}

type Delivery struct {
	Meta
	MessageIDs []string
	Watermark  int64
	Seq        int64
}

type Postback struct {
	Meta
	Title   string
	Payload string
}

type Read struct {
	Meta
	Watermark int64
	Seq       int64
}

type AccountLink struct {
	Meta
	Status            string
	AuthorizationCode string
}

// Unknown is any event this service does not recognize.
type Unknown struct {
	Meta
	Reason string
	Raw    json.RawMessage
}

func (e OptIn) EventMeta() Meta        { return e.Meta }
func (e MessageEvent) EventMeta() Meta { return e.Meta }
func (e Delivery) EventMeta() Meta     { return e.Meta }
func (e Postback) EventMeta() Meta     { return e.Meta }
func (e Read) EventMeta() Meta         { return e.Meta }
func (e AccountLink) EventMeta() Meta  { return e.Meta }
func (e Unknown) EventMeta() Meta      { return e.Meta }

func (OptIn) Kind() Kind        { return KindOptIn }
func (MessageEvent) Kind() Kind { return KindMessage }
func (Delivery) Kind() Kind     { return KindDelivery }
func (Postback) Kind() Kind     { return KindPostback }
func (Read) Kind() Kind         { return KindRead }
func (AccountLink) Kind() Kind  { return KindAccountLink }
func (Unknown) Kind() Kind      { return KindUnknown }

func (OptIn) sealed()        {}
func (MessageEvent) sealed() {}
func (Delivery) sealed()     {}
func (Postback) sealed()     {}
func (Read) sealed()         {}
func (AccountLink) sealed()  {}
func (Unknown) sealed()      {}

// Message is the payload of a MessageEvent.
type Message struct {
	MID      string
	IsEcho   bool
	AppID    string
	Metadata string
	Content  Content
}

// Content is exactly one of TextContent, AttachmentContent,
// QuickReplyContent or NoContent.
type Content interface {
	content()
}

type TextContent struct {
	Text string
}

type AttachmentContent struct {
	Attachments []Attachment
}

type QuickReplyContent struct {
	Payload string
	Text    string
}

// NoContent is a message with neither text, attachments nor a quick reply.
type NoContent struct{}

func (TextContent) content()       {}
func (AttachmentContent) content() {}
func (QuickReplyContent) content() {}
func (NoContent) content()         {}

// Attachment is passed through opaquely.
type Attachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
