package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGraphURL    = "https://graph.facebook.com/v2.6"
	DefaultSendTimeout = 10 * time.Second
	replyMetadata      = "DEVELOPER_DEFINED_METADATA"
)

// Client calls the Send API with a page access token.
type Client struct {
	graphURL    string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(graphURL, accessToken string, timeout time.Duration, logger *slog.Logger) *Client {
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Client{
		graphURL:    strings.TrimSuffix(graphURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text     string `json:"text"`
		Metadata string `json:"metadata,omitempty"`
	} `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
	Error       *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message to recipientID. There are no retries.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	var payload sendRequest
	payload.Recipient.ID = recipientID
	payload.Message.Text = text
	payload.Message.Metadata = replyMetadata

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	endpoint := c.graphURL + "/me/messages?" + url.Values{"access_token": {c.accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the token; report the transport error only.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("calling send api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var result sendResponse
	_ = json.Unmarshal(respBody, &result)

	if resp.StatusCode != http.StatusOK {
		if result.Error != nil {
			return fmt.Errorf("send api status %d: %s (type=%s code=%d)", resp.StatusCode, result.Error.Message, result.Error.Type, result.Error.Code)
		}
		return fmt.Errorf("send api status %d", resp.StatusCode)
	}

	if result.MessageID != "" {
		c.logger.Debug("message sent", "message_id", result.MessageID, "recipient_id", result.RecipientID)
	} else {
		c.logger.Debug("send api called", "recipient_id", result.RecipientID)
	}
	return nil
}
