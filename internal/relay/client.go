package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	apperrors "guild-intake/internal/common/errors"
	"guild-intake/internal/models"

	"github.com/google/uuid"
)

type ClientConfig struct {
	Address          string
	DialTimeout      time.Duration
	MaxResponseBytes int64
}

// Client sends one request per connection to a relay Server.
type Client struct {
	config ClientConfig
	auth   *Authenticator
}

func NewClient(config ClientConfig, auth *Authenticator) *Client {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = 1024 * 1024
	}
	return &Client{config: config, auth: auth}
}

// Call sends command with payload and, on success, decodes the response
// data into result. The returned error is a *errors.StandardError: the
// worker's own code when it answered ok=false, TRANSPORT_FAILED when no
// answer could be read. There are no retries.
func (c *Client) Call(ctx context.Context, command string, payload any, result any) (Outcome, error) {
	requestID := uuid.NewString()

	var raw RawMessage
	if payload != nil {
		data, err := Marshal(payload)
		if err != nil {
			return OutcomeTransportFailure, apperrors.NewTransportFailedError("encode", err)
		}
		raw = data
	}

	token, err := c.auth.Mint(command, requestID)
	if err != nil {
		return OutcomeTransportFailure, apperrors.NewTransportFailedError("sign", err)
	}

	resp, err := c.send(ctx, Request{
		Command:   command,
		Token:     token,
		RequestID: requestID,
		Payload:   raw,
	})
	if err != nil {
		return OutcomeTransportFailure, err
	}

	if !resp.OK {
		rejected := apperrors.FromCode(resp.Code, resp.Error)
		rejected.Details = resp.Details
		return OutcomeRejected, rejected.WithMetadata("requestId", requestID)
	}

	if result != nil && len(resp.Data) > 0 {
		if err := Unmarshal(resp.Data, result); err != nil {
			return OutcomeTransportFailure, apperrors.NewTransportFailedError("decode data", err)
		}
	}
	return OutcomeAccepted, nil
}

// SubmitApplication relays one parsed submission to the worker.
func (c *Client) SubmitApplication(ctx context.Context, payload models.SubmissionPayload) (*models.Ack, Outcome, error) {
	var ack models.Ack
	outcome, err := c.Call(ctx, models.CommandSubmitApplication, payload, &ack)
	if err != nil {
		return nil, outcome, err
	}
	return &ack, outcome, nil
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return nil, apperrors.NewTransportFailedError("dial", err)
	}
	defer conn.Close()

	// Cancelling ctx aborts a pending read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := newEncoder(conn).Encode(req); err != nil {
		return nil, apperrors.NewTransportFailedError("write", c.contextErr(ctx, err))
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	var resp Response
	if err := newDecoder(io.LimitReader(conn, c.config.MaxResponseBytes)).Decode(&resp); err != nil {
		return nil, apperrors.NewTransportFailedError("read", c.contextErr(ctx, err))
	}
	return &resp, nil
}

func (c *Client) contextErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w (%v)", ctx.Err(), err)
	}
	return err
}
