package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/pkg/errors"
)

const idlePollInterval = 20 * time.Millisecond

// Run feeds sink from the first matching sensor until ctx is done. It scans,
// connects through the auto connect match (any sensor when none was set) and
// scans again RetryInterval after a connection error. On shutdown it
// disconnects and waits for the machine to settle in Idle.
func (c *Client) Run(ctx context.Context, sink models.FrameSink) error {
	c.setSink(sink)
	c.mu.Lock()
	if c.autoConnect == nil {
		c.autoConnect = func(models.PeripheralHandle) bool { return true }
	}
	c.mu.Unlock()
	c.StartScan()
	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		case err := <-c.failures:
			c.logger.Info("rescanning after connection error",
				slog.String("error", err.Error()), slog.Duration("in", c.retryInterval))
			select {
			case <-ctx.Done():
				return c.shutdown()
			case <-time.After(c.retryInterval):
			}
			c.StartScan()
		}
	}
}

func (c *Client) shutdown() error {
	c.Disconnect()
	wait := c.stepTimeout
	if wait <= 0 {
		wait = util.DefaultStepTimeout
	}
	err := util.Timeout(func() error {
		for c.State() != models.Idle {
			time.Sleep(idlePollInterval)
		}
		return nil
	}, wait+time.Second)
	if err != nil {
		return errors.Wrap(err, "shutdown issue")
	}
	return nil
}
