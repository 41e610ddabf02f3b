package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/messenger-wemo/internal/device"
	"github.com/mattjoyce/messenger-wemo/internal/dispatch/mocks"
	"github.com/mattjoyce/messenger-wemo/internal/messenger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textMessage(sender, mid, text string) messenger.MessageEvent {
	return messenger.MessageEvent{
		Meta:    messenger.Meta{SenderID: sender, Fingerprint: "fp-" + mid},
		Message: messenger.Message{MID: mid, Content: messenger.TextContent{Text: text}},
	}
}

func TestRouterEchoesUnmatchedText(t *testing.T) {
	ctrl := gomock.NewController(t)
	toggler := mocks.NewMockToggler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	notifier.EXPECT().SendText(gomock.Any(), "U1", "hello").Return(nil)

	r := NewRouter(DefaultCommands, toggler, notifier, nil, testLogger())
	require.NoError(t, r.HandleMessage(context.Background(), textMessage("U1", "m1", "hello")))
}

func TestRouterLampCommandTogglesThenConfirms(t *testing.T) {
	for _, text := range []string{"LAMP", "lamp", "  Lamp \n"} {
		t.Run(text, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			toggler := mocks.NewMockToggler(ctrl)
			notifier := mocks.NewMockNotifier(ctrl)

			gomock.InOrder(
				toggler.EXPECT().Toggle(gomock.Any(), "lamp").Return(device.On, nil).Times(1),
				notifier.EXPECT().SendText(gomock.Any(), "U1", "Switching lamp.").Return(nil).Times(1),
			)

			r := NewRouter(DefaultCommands, toggler, notifier, nil, testLogger())
			require.NoError(t, r.HandleMessage(context.Background(), textMessage("U1", "m1", text)))
		})
	}
}

func TestRouterCommandNeedsWholeWord(t *testing.T) {
	ctrl := gomock.NewController(t)
	toggler := mocks.NewMockToggler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	notifier.EXPECT().SendText(gomock.Any(), "U1", "lamp please").Return(nil)

	r := NewRouter(DefaultCommands, toggler, notifier, nil, testLogger())
	require.NoError(t, r.HandleMessage(context.Background(), textMessage("U1", "m1", "lamp please")))
}

func TestRouterCustomCommandTable(t *testing.T) {
	ctrl := gomock.NewController(t)
	toggler := mocks.NewMockToggler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	gomock.InOrder(
		toggler.EXPECT().Toggle(gomock.Any(), "desk fan").Return(device.Off, nil),
		notifier.EXPECT().SendText(gomock.Any(), "U1", "Fan toggled.").Return(nil),
	)

	r := NewRouter([]Command{{Keyword: "Fan", Label: "desk fan", Reply: "Fan toggled."}}, toggler, notifier, nil, testLogger())
	_, ok := r.Match("lamp")
	assert.False(t, ok)
	require.NoError(t, r.HandleMessage(context.Background(), textMessage("U1", "m1", "fan")))
}

func TestRouterNonTextContent(t *testing.T) {
	tests := []struct {
		name      string
		message   messenger.Message
		wantReply string
	}{
		{
			name:      "quick reply",
			message:   messenger.Message{MID: "m1", Content: messenger.QuickReplyContent{Payload: "RED", Text: "lamp"}},
			wantReply: ReplyQuickReply,
		},
		{
			name: "attachments",
			message: messenger.Message{MID: "m2", Content: messenger.AttachmentContent{
				Attachments: []messenger.Attachment{{Type: "image"}},
			}},
			wantReply: ReplyAttachment,
		},
		{
			name:    "no content",
			message: messenger.Message{MID: "m3", Content: messenger.NoContent{}},
		},
		{
			name:    "echo",
			message: messenger.Message{MID: "m4", IsEcho: true, AppID: "123", Content: messenger.TextContent{Text: "lamp"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			toggler := mocks.NewMockToggler(ctrl)
			notifier := mocks.NewMockNotifier(ctrl)
			if tt.wantReply != "" {
				notifier.EXPECT().SendText(gomock.Any(), "U1", tt.wantReply).Return(nil)
			}

			r := NewRouter(DefaultCommands, toggler, notifier, nil, testLogger())
			ev := messenger.MessageEvent{Meta: messenger.Meta{SenderID: "U1"}, Message: tt.message}
			assert.NoError(t, r.HandleMessage(context.Background(), ev))
		})
	}
}

func TestRouterToggleFailureReplies(t *testing.T) {
	cause := errors.New("connection refused")
	tests := []struct {
		name      string
		err       error
		wantReply string
	}{
		{
			name:      "not found",
			err:       device.ErrDeviceNotFound,
			wantReply: "Sorry, I can't find the lamp right now.",
		},
		{
			name:      "query failure",
			err:       &device.CommunicationError{Label: "lamp", Phase: device.PhaseQuery, Err: cause},
			wantReply: "Sorry, I couldn't reach the lamp. Please try again.",
		},
		{
			name:      "command failure",
			err:       &device.CommunicationError{Label: "lamp", Phase: device.PhaseCommand, Err: cause},
			wantReply: "Sorry, the lamp may not have switched. Please check it before trying again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			toggler := mocks.NewMockToggler(ctrl)
			notifier := mocks.NewMockNotifier(ctrl)

			gomock.InOrder(
				toggler.EXPECT().Toggle(gomock.Any(), "lamp").Return(device.Off, tt.err),
				notifier.EXPECT().SendText(gomock.Any(), "U1", tt.wantReply).Return(nil),
			)

			r := NewRouter(DefaultCommands, toggler, notifier, nil, testLogger())
			err := r.HandleMessage(context.Background(), textMessage("U1", "m1", "lamp"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.NotContains(t, tt.wantReply, cause.Error())
		})
	}
}

func TestRouterReturnsSendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	toggler := mocks.NewMockToggler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	sendErr := errors.New("graph api down")
	notifier.EXPECT().SendText(gomock.Any(), "U1", "hi").Return(sendErr)

	r := NewRouter(DefaultCommands, toggler, notifier, nil, testLogger())
	err := r.HandleMessage(context.Background(), textMessage("U1", "m1", "hi"))
	assert.ErrorIs(t, err, sendErr)
}
