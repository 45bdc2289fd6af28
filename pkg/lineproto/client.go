package lineproto

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// Shell commands understood by the board firmware.
const (
	CmdVersion    = "ver"
	CmdSerial     = "ser"
	CmdDiag       = "diag"
	CmdChannelOff = "chon all,0"
	CmdTestMode   = "test"
	CmdBootloader = "bootloader"
	CmdSetSerial  = "setser"
)

// Client sends shell commands and awaits their responses.
type Client struct {
	w  io.Writer
	rx *Receiver
}

// NewClient creates a Client writing to w and reading responses from rx.
func NewClient(w io.Writer, rx *Receiver) *Client {
	return &Client{w: w, rx: rx}
}

// Send discards stale responses and writes cmd terminated by CR.
func (c *Client) Send(cmd string) error {
	if n := c.rx.DrainCli(); n > 0 {
		glog.V(2).Infof("discarded %d stale CLI lines before %q", n, cmd)
	}
	glog.V(2).Infof("tx %s", cmd)
	if _, err := io.WriteString(c.w, cmd+"\r"); err != nil {
		return fx.E(fx.KindPort, "send "+commandName(cmd), err)
	}
	return nil
}

// Await waits for the next CLI line. A zero timeout waits until ctx is
// done. An expired wait is a KindTimeout error.
func (c *Client) Await(ctx context.Context, timeout time.Duration) (CliLine, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case line := <-c.rx.Cli():
		return line, nil
	case <-c.rx.Done():
		return "", fx.Errorf(fx.KindPort, "receiver stopped")
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", fx.E(fx.KindTimeout, "await response", ctx.Err())
		}
		return "", ctx.Err()
	}
}

// Query sends cmd and awaits its response, retrying per p. p.Timeout
// bounds each attempt.
func (c *Client) Query(ctx context.Context, cmd string, p fx.Policy) (CliLine, error) {
	if len(p.RetryOn) == 0 {
		p.RetryOn = []fx.Kind{fx.KindTimeout}
	}
	var line CliLine
	err := fx.Retry(ctx, p, func(ctx context.Context, attempt int) (err error) {
		if err = c.Send(cmd); err != nil {
			return err
		}
		line, err = c.Await(ctx, 0)
		return err
	})
	if err != nil {
		if fx.IsKind(err, fx.KindTimeout) {
			return "", &fx.Error{
				Kind: fx.KindTimeout,
				Op:   fmt.Sprintf("Timed out waiting for response to %s command", commandName(cmd)),
				Err:  err,
			}
		}
		return "", err
	}
	return line, nil
}

// WaitForData waits for the first sample line after the call.
func (c *Client) WaitForData(ctx context.Context, timeout time.Duration) (DataLine, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-c.rx.Data():
		return c.rx.Latest(), nil
	case <-c.rx.Done():
		return "", fx.Errorf(fx.KindPort, "receiver stopped")
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", fx.E(fx.KindTimeout, "Timed out waiting for data stream", ctx.Err())
		}
		return "", ctx.Err()
	}
}

func commandName(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}
