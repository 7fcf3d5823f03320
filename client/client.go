package client

import (
	"context"
	"sync"
	"time"

	"github.com/go-zoox/gztun/config"
	"github.com/go-zoox/gztun/registry"
	"github.com/go-zoox/logger"
)

const (
	backoffCap   = 60 * time.Second
	backoffReset = 1 * time.Second
)

// Client is the private-network daemon: one control channel dialed out
// to the server, a pool of reusable data channels, and the set of
// real-server sockets currently bound to user flows.
type Client struct {
	cfg       *config.Client
	clientKey string

	pool        *Pool
	realServers *registry.Map[*realServerChannel]

	mu      sync.Mutex
	control *controlChannel
	backoff time.Duration
}

// New creates a Client for the given server config and clientKey.
func New(cfg *config.Client, clientKey string) *Client {
	c := &Client{
		cfg:         cfg,
		clientKey:   clientKey,
		realServers: registry.New[*realServerChannel](),
		backoff:     backoffReset,
	}
	c.pool = newPool(c)
	return c
}

// Run dials and redials the control channel with exponential backoff
// until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cc, err := dialControlChannel(c)
		if err != nil {
			logger.Warn("[client] failed to connect to %s: %v", c.cfg.Addr(), err)
			if !c.sleepBackoff(ctx) {
				return nil
			}
			continue
		}

		logger.Info("[client] connected to %s as %s", c.cfg.Addr(), c.clientKey)
		c.setControl(cc)
		c.resetBackoff()

		done := make(chan struct{})
		go func() {
			cc.serve(cc.dispatch)
			close(done)
		}()

		select {
		case <-ctx.Done():
			cc.close()
			<-done
			return nil
		case <-done:
		}

		c.setControl(nil)
		if !c.sleepBackoff(ctx) {
			return nil
		}
	}
}

func (c *Client) setControl(cc *controlChannel) {
	c.mu.Lock()
	c.control = cc
	c.mu.Unlock()
}

func (c *Client) onControlClosed() {
	logger.Warn("[client] control channel lost, reconnecting")
}

// sleepBackoff waits for the next backoff delay: the stored value
// doubles each call starting from 2s, clamped at 60s; once a call has
// used the 60s cap, the next one restarts from 2s. This reproduces the
// 2,4,8,16,32,60[,2,4,...] sequence from a string of reconnect failures.
func (c *Client) sleepBackoff(ctx context.Context) bool {
	if c.backoff >= backoffCap {
		c.backoff = backoffReset
	}

	wait := c.backoff * 2
	if wait > backoffCap {
		wait = backoffCap
	}
	c.backoff = wait

	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) resetBackoff() {
	c.backoff = backoffReset
}

// handleDisconnect processes a server-initiated DISCONNECT for userID,
// regardless of which channel it arrived on.
func (c *Client) handleDisconnect(userID string) {
	real, ok := c.realServers.Remove(userID)
	if !ok {
		return
	}
	real.closeWithoutNotify()

	dc := real.dc
	dc.unbind()
	c.pool.Return(dc)
}
