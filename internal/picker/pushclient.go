package picker

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/wms-platform/pick-floor/internal/push"
	"github.com/wms-platform/pick-floor/pkg/logging"
)

// PushOptions configures the push channel client
type PushOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// OnConnect runs after every successful (re)connect; refetch and resend
	// pending mirrors here
	OnConnect func()
	// OnQueueUpdated runs for every queue_updated message
	OnQueueUpdated func(msg push.Message)
	// OnVersionChanged runs when the server announces a build other than the
	// first one this client saw
	OnVersionChanged func(version string)
}

// PushClient holds the device's push connection open, reconnecting with
// capped exponential backoff and jitter. Local state is untouched by a drop.
type PushClient struct {
	url    string
	opts   PushOptions
	dialer *websocket.Dialer
	logger *logging.Logger

	mu      sync.Mutex
	version string
}

// NewPushClient creates a client for the ws:// or wss:// url
func NewPushClient(url string, opts PushOptions, logger *logging.Logger) *PushClient {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	return &PushClient{
		url:    url,
		opts:   opts,
		dialer: websocket.DefaultDialer,
		logger: logger.WithComponent("push-client"),
	}
}

// Version returns the server build seen first
func (c *PushClient) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *PushClient) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run connects and reads until ctx is done
func (c *PushClient) Run(ctx context.Context) error {
	b := c.newBackOff()
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := b.NextBackOff()
			c.logger.WithError(err).Warn("Push connect failed", "retryIn", delay.String())
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		b.Reset()
		c.logger.Info("Push channel connected")
		if c.opts.OnConnect != nil {
			c.opts.OnConnect()
		}

		err = c.read(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := b.NextBackOff()
		c.logger.WithError(err).Warn("Push channel dropped", "retryIn", delay.String())
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (c *PushClient) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var msg push.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		switch msg.Type {
		case push.MessageQueueUpdated:
			if c.opts.OnQueueUpdated != nil {
				c.opts.OnQueueUpdated(msg)
			}
		case push.MessageVersionChanged:
			c.observeVersion(msg.Version)
		}
	}
}

func (c *PushClient) observeVersion(version string) {
	if version == "" {
		return
	}
	c.mu.Lock()
	first := c.version == ""
	changed := !first && c.version != version
	if first {
		c.version = version
	}
	c.mu.Unlock()

	if changed && c.opts.OnVersionChanged != nil {
		c.opts.OnVersionChanged(version)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
