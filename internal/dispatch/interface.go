package dispatch

import (
	"context"

	"github.com/mattjoyce/messenger-wemo/internal/device"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/messenger-wemo/internal/dispatch Ledger,Notifier,Toggler

// Notifier sends a plain text reply to a Messenger user.
type Notifier interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// Toggler flips a device by label and returns the confirmed new state.
type Toggler interface {
	Toggle(ctx context.Context, label string) (device.BinaryState, error)
}

// Ledger remembers handled events and delivery/read watermarks.
type Ledger interface {
	MarkProcessed(ctx context.Context, key, kind, senderID string) (bool, error)
	RecordWatermark(ctx context.Context, kind, senderID string, watermark, seq int64) error
}
