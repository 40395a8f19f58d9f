package client

import (
	"context"
	"sync"

	"github.com/wippyai/tonbridge/config"
	"github.com/wippyai/tonbridge/errors"
)

// Client is a Library bound to one context.
type Client struct {
	lib       *Library
	closeErr  error
	h         Handle
	closeOnce sync.Once
}

// NewClient creates a context configured by cfg.
func (l *Library) NewClient(cfg config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw, err := cfg.JSON()
	if err != nil {
		return nil, err
	}
	h, err := l.CreateContext(raw)
	if err != nil {
		return nil, err
	}
	return &Client{lib: l, h: h}, nil
}

// Handle returns the context handle.
func (c *Client) Handle() Handle {
	return c.h
}

// Library returns the library the client was created from.
func (c *Client) Library() *Library {
	return c.lib
}

// Call runs function asynchronously and decodes its result into out.
func (c *Client) Call(ctx context.Context, function string, params, out any, opts ...CallOption) error {
	call, err := c.lib.Call(ctx, c.h, function, params, opts...)
	if err != nil {
		return err
	}
	return call.Result(ctx, out)
}

// CallSync runs function with requestSync and decodes its result into out.
func (c *Client) CallSync(function string, params, out any) error {
	p, err := encodeParams(function, params)
	if err != nil {
		return err
	}
	raw, err := c.lib.RequestSync(c.h, function, p)
	if err != nil {
		return err
	}
	env, err := decodeEnvelope(errors.PhaseRequest, function, raw)
	if err != nil {
		return err
	}
	return decodeResult(function, env.Result, out)
}

// Stream starts function and returns the call for reading its responses.
func (c *Client) Stream(ctx context.Context, function string, params any, opts ...CallOption) (*Call, error) {
	return c.lib.Call(ctx, c.h, function, params, opts...)
}

// ResolveAppRequest answers an app request raised on this client's context.
func (c *Client) ResolveAppRequest(ctx context.Context, appRequestID uint32, result any, appErr error) error {
	return c.lib.ResolveAppRequest(ctx, c.h, appRequestID, result, appErr)
}

// Close destroys the context. Closing twice is a no-op.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.lib.DestroyContext(c.h)
	})
	return c.closeErr
}
