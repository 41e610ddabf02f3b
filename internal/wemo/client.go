package wemo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/huin/goupnp/soap"

	"github.com/mattjoyce/messenger-wemo/internal/device"
)

const (
	basicEventService = "urn:Belkin:service:basicevent:1"
	basicEventPath    = "/upnp/control/basicevent1"
)

// Client controls one WeMo switch over UPnP SOAP.
type Client struct {
	soap *soap.SOAPClient
	err  error
}

// NewClient returns a client for the device rooted at baseURL. Deadlines
// come from the caller's context; timeout is a backstop for callers that
// pass none.
func NewClient(baseURL string, timeout time.Duration) *Client {
	endpoint, err := url.Parse(strings.TrimSuffix(baseURL, "/") + basicEventPath)
	if err != nil {
		return &Client{err: fmt.Errorf("invalid base url %q: %w", baseURL, err)}
	}
	sc := soap.NewSOAPClient(*endpoint)
	sc.HTTPClient.Timeout = timeout
	return &Client{soap: sc}
}

// Connector adapts NewClient to the registry.
func Connector(timeout time.Duration) device.Connector {
	return func(info device.Info) device.Switch {
		return NewClient(info.BaseURL, timeout)
	}
}

type binaryStateArgs struct {
	BinaryState string
}

type binaryStateReply struct {
	BinaryState string `xml:"BinaryState"`
}

func (c *Client) GetBinaryState(ctx context.Context) (device.BinaryState, error) {
	reply, err := c.call(ctx, "GetBinaryState", &struct{}{})
	if err != nil {
		return device.Off, err
	}
	return device.ParseBinaryState(reply.BinaryState)
}

func (c *Client) SetBinaryState(ctx context.Context, state device.BinaryState) error {
	_, err := c.call(ctx, "SetBinaryState", &binaryStateArgs{BinaryState: strconv.Itoa(int(state))})
	return err
}

func (c *Client) call(ctx context.Context, action string, args any) (*binaryStateReply, error) {
	if c.err != nil {
		return nil, c.err
	}
	reply := &binaryStateReply{}
	if err := c.soap.PerformActionCtx(ctx, basicEventService, action, args, reply); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	reply.BinaryState = strings.TrimSpace(reply.BinaryState)
	// Devices answer "Error" when asked to set the state they are already in.
	if strings.EqualFold(reply.BinaryState, "error") {
		return nil, fmt.Errorf("%s: device reported error", action)
	}
	return reply, nil
}
