// Package messenger decodes Messenger platform webhook payloads and sends
// replies through the Send API.
package messenger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// PageObject is the only envelope object this service handles.
const PageObject = "page"

var (
	// ErrMalformedEnvelope means the body is not the expected JSON shape.
	ErrMalformedEnvelope = errors.New("malformed webhook envelope")
	// ErrUnsupportedObject means the envelope is for something other than a page.
	ErrUnsupportedObject = errors.New("unsupported webhook object")
)

// Envelope is one decoded webhook delivery.
type Envelope struct {
	Object  string
	Entries []Entry
}

// Entry is one page's batch of events, in delivery order.
type Entry struct {
	PageID string
	Time   int64
	Events []Event
}

// ID is a platform identifier. The platform sends strings but older
// payloads carry numbers, so both are accepted.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type wireEnvelope struct {
	Object string      `json:"object"`
	Entry  []wireEntry `json:"entry"`
}

type wireEntry struct {
	ID        ID                `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging"`
}

type wireParty struct {
	ID ID `json:"id"`
}

type wireEvent struct {
	Sender         wireParty       `json:"sender"`
	Recipient      wireParty       `json:"recipient"`
	Timestamp      int64           `json:"timestamp"`
	OptIn          json.RawMessage `json:"optin"`
	Message        json.RawMessage `json:"message"`
	Delivery       json.RawMessage `json:"delivery"`
	Postback       json.RawMessage `json:"postback"`
	Read           json.RawMessage `json:"read"`
	AccountLinking json.RawMessage `json:"account_linking"`
}

// Decode parses a raw webhook body. Structural problems with the envelope
// or its entries wrap ErrMalformedEnvelope; a non-page object returns
// ErrUnsupportedObject. Individual events that match no known shape, more
// than one shape, or fail to decode become Unknown events instead of
// failing the whole delivery.
func Decode(body []byte) (*Envelope, error) {
	var wire wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if wire.Object == "" {
		return nil, fmt.Errorf("%w: missing object", ErrMalformedEnvelope)
	}
	if wire.Object != PageObject {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedObject, wire.Object)
	}

	env := &Envelope{
		Object:  wire.Object,
		Entries: make([]Entry, 0, len(wire.Entry)),
	}
	for _, we := range wire.Entry {
		entry := Entry{
			PageID: string(we.ID),
			Time:   we.Time,
			Events: make([]Event, 0, len(we.Messaging)),
		}
		for _, raw := range we.Messaging {
			entry.Events = append(entry.Events, decodeEvent(raw))
		}
		env.Entries = append(env.Entries, entry)
	}
	return env, nil
}

func fingerprint(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

func decodeEvent(raw json.RawMessage) Event {
	meta := Meta{Fingerprint: fingerprint(raw)}

	var we wireEvent
	if err := json.Unmarshal(raw, &we); err != nil {
		return Unknown{Meta: meta, Reason: "undecodable: " + err.Error(), Raw: raw}
	}
	meta.SenderID = string(we.Sender.ID)
	meta.RecipientID = string(we.Recipient.ID)
	meta.Timestamp = we.Timestamp

	shapes := map[string]json.RawMessage{
		"optin":           we.OptIn,
		"message":         we.Message,
		"delivery":        we.Delivery,
		"postback":        we.Postback,
		"read":            we.Read,
		"account_linking": we.AccountLinking,
	}
	var present []string
	for name, v := range shapes {
		if len(v) > 0 && !bytes.Equal(v, []byte("null")) {
			present = append(present, name)
		}
	}
	switch len(present) {
	case 0:
		return Unknown{Meta: meta, Reason: "no known event shape", Raw: raw}
	case 1:
	default:
		return Unknown{Meta: meta, Reason: "ambiguous event shape", Raw: raw}
	}

	kind := present[0]
	ev, err := decodeVariant(kind, shapes[kind], meta)
	if err != nil {
		return Unknown{Meta: meta, Reason: fmt.Sprintf("invalid %s: %v", kind, err), Raw: raw}
	}
	return ev
}

func decodeVariant(kind string, payload json.RawMessage, meta Meta) (Event, error) {
	switch kind {
	case "optin":
		var v struct {
			Ref     string `json:"ref"`
			UserRef string `json:"user_ref"`
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return OptIn{Meta: meta, Ref: v.Ref, UserRef: v.UserRef}, nil

	case "message":
		msg, err := decodeMessage(payload)
		if err != nil {
			return nil, err
		}
		return MessageEvent{Meta: meta, Message: msg}, nil

	case "delivery":
		var v struct {
			MIDs      []string `json:"mids"`
			Watermark int64    `json:"watermark"`
			Seq       int64    `json:"seq"`
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return Delivery{Meta: meta, MessageIDs: v.MIDs, Watermark: v.Watermark, Seq: v.Seq}, nil

	case "postback":
		var v struct {
			Title   string `json:"title"`
			Payload string `json:"payload"`
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return Postback{Meta: meta, Title: v.Title, Payload: v.Payload}, nil

	case "read":
		var v struct {
			Watermark int64 `json:"watermark"`
			Seq       int64 `json:"seq"`
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return Read{Meta: meta, Watermark: v.Watermark, Seq: v.Seq}, nil

	case "account_linking":
		var v struct {
			Status            string `json:"status"`
			AuthorizationCode string `json:"authorization_code"`
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return AccountLink{Meta: meta, Status: v.Status, AuthorizationCode: v.AuthorizationCode}, nil
	}
	return nil, fmt.Errorf("unhandled kind %q", kind)
}

func decodeMessage(payload json.RawMessage) (Message, error) {
	var v struct {
		MID         string       `json:"mid"`
		IsEcho      bool         `json:"is_echo"`
		AppID       json.Number  `json:"app_id"`
		Metadata    string       `json:"metadata"`
		Text        string       `json:"text"`
		Attachments []Attachment `json:"attachments"`
		QuickReply  *struct {
			Payload string `json:"payload"`
		} `json:"quick_reply"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return Message{}, err
	}

	msg := Message{
		MID:      v.MID,
		IsEcho:   v.IsEcho,
		AppID:    v.AppID.String(),
		Metadata: v.Metadata,
	}
	switch {
	case v.QuickReply != nil:
		msg.Content = QuickReplyContent{Payload: v.QuickReply.Payload, Text: v.Text}
	case v.Text != "":
		msg.Content = TextContent{Text: v.Text}
	case len(v.Attachments) > 0:
		msg.Content = AttachmentContent{Attachments: v.Attachments}
	default:
		msg.Content = NoContent{}
	}
	return msg, nil
}
