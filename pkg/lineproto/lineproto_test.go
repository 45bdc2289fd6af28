package lineproto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// chanLink delivers queued chunks to Read and times out like a serial
// port configured with a short read timeout.
type chanLink struct {
	readCh  chan string
	writeCh chan string
	closed  chan struct{}
}

func newChanLink() *chanLink {
	return &chanLink{
		readCh:  make(chan string, 64),
		writeCh: make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

func (c *chanLink) Read(p []byte) (int, error) {
	select {
	case s := <-c.readCh:
		return copy(p, s), nil
	case <-c.closed:
		return 0, errors.New("closed")
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (c *chanLink) Write(p []byte) (int, error) {
	c.writeCh <- string(p)
	return len(p), nil
}

func (c *chanLink) feed(chunks ...string) {
	for _, s := range chunks {
		c.readCh <- s
	}
}

type rxTestEnv struct {
	link   *chanLink
	rx     *Receiver
	client *Client
	cancel context.CancelFunc
	errCh  chan error
}

func newRxTestEnv(t *testing.T) *rxTestEnv {
	env := &rxTestEnv{link: newChanLink(), errCh: make(chan error, 1)}
	env.rx = NewReceiver(env.link)
	env.client = NewClient(env.link, env.rx)
	var ctx context.Context
	ctx, env.cancel = context.WithCancel(context.Background())
	go func() { env.errCh <- env.rx.Run(ctx) }()
	t.Cleanup(env.stop)
	return env
}

func (e *rxTestEnv) stop() {
	e.cancel()
	<-e.rx.Done()
}

func (e *rxTestEnv) waitLatest(t *testing.T, want string) {
	require.Eventually(t, func() bool {
		return string(e.rx.Latest()) == want
	}, time.Second, time.Millisecond)
}

func TestReceiverClassifies(t *testing.T) {
	env := newRxTestEnv(t)
	env.link.feed("boot banner\r", "CL", "I:Version 1.2\r\nDATA:1,2", "\rDATA:2,3\r")

	line, err := env.client.Await(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, CliLine("CLI:Version 1.2"), line)
	require.Equal(t, "Version 1.2", line.Text())

	env.waitLatest(t, "DATA:2,3")
	select {
	case <-env.rx.Data():
	default:
		t.Fatal("data signal not raised")
	}
}

func TestReceiverCapture(t *testing.T) {
	env := newRxTestEnv(t)
	env.link.feed("DATA:0,1\r")
	env.waitLatest(t, "DATA:0,1")

	env.rx.StartCapture()
	env.link.feed("DATA:1,1\rCLI:OK\rDATA:2,1\r")
	env.waitLatest(t, "DATA:2,1")
	require.Equal(t, []string{"DATA:1,1", "DATA:2,1"}, env.rx.StopCapture())

	env.link.feed("DATA:3,1\r")
	env.waitLatest(t, "DATA:3,1")
	require.Empty(t, env.rx.StopCapture())
}

func TestReceiverKeepsNewestCli(t *testing.T) {
	env := newRxTestEnv(t)
	for i := 0; i < CliQueueLen+2; i++ {
		env.link.feed(fmt.Sprintf("CLI:%d\r", i))
	}
	require.Eventually(t, func() bool { return env.rx.Dropped() == 2 }, time.Second, time.Millisecond)
	line := <-env.rx.Cli()
	require.Equal(t, CliLine("CLI:2"), line)
}

func TestReceiverStops(t *testing.T) {
	env := newRxTestEnv(t)
	env.cancel()
	select {
	case <-env.rx.Done():
	case <-time.After(time.Second):
		t.Fatal("receiver did not stop")
	}
	require.Equal(t, context.Canceled, <-env.errCh)

	_, err := env.client.Await(context.Background(), time.Second)
	require.True(t, fx.IsKind(err, fx.KindPort))
}

func TestReceiverReadError(t *testing.T) {
	env := newRxTestEnv(t)
	close(env.link.closed)
	<-env.rx.Done()
	require.EqualError(t, <-env.errCh, "closed")
}

// respond answers each written command with reply(n, cmd), n counting
// from 1. An empty reply sends nothing.
func (e *rxTestEnv) respond(reply func(n int, cmd string) string) {
	go func() {
		n := 0
		for cmd := range e.link.writeCh {
			n++
			if r := reply(n, strings.TrimSuffix(cmd, "\r")); r != "" {
				e.link.feed(r + "\r")
			}
		}
	}()
}

func TestClientQueryRetries(t *testing.T) {
	env := newRxTestEnv(t)
	env.respond(func(n int, cmd string) string {
		if n < 3 {
			return ""
		}
		return "CLI:" + cmd + " v2.1"
	})
	var retries []int
	line, err := env.client.Query(context.Background(), CmdVersion, fx.Policy{
		Attempts: 5,
		Timeout:  30 * time.Millisecond,
		OnRetry:  func(attempt int, err error) { retries = append(retries, attempt) },
	})
	require.NoError(t, err)
	require.Equal(t, "ver v2.1", line.Text())
	require.Equal(t, []int{1, 2}, retries)
}

func TestClientQueryExhausted(t *testing.T) {
	env := newRxTestEnv(t)
	env.respond(func(int, string) string { return "" })
	_, err := env.client.Query(context.Background(), CmdChannelOff, fx.Policy{
		Attempts: 2,
		Timeout:  10 * time.Millisecond,
	})
	require.True(t, fx.IsKind(err, fx.KindTimeout))
	require.True(t, strings.HasPrefix(err.Error(), "Timed out waiting for response to chon command"), err.Error())
}

func TestClientSendDiscardsStale(t *testing.T) {
	env := newRxTestEnv(t)
	env.link.feed("CLI:stale\r")
	require.Eventually(t, func() bool { return len(env.rx.Cli()) == 1 }, time.Second, time.Millisecond)

	env.respond(func(int, string) string { return "CLI:Serial:NOT_SET" })
	require.NoError(t, env.client.Send(CmdSerial))
	line, err := env.client.Await(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "Serial:NOT_SET", line.Text())
}

func TestClientWaitForData(t *testing.T) {
	env := newRxTestEnv(t)
	_, err := env.client.WaitForData(context.Background(), 20*time.Millisecond)
	require.True(t, fx.IsKind(err, fx.KindTimeout))

	env.link.feed("DATA:7,1,2\r")
	line, err := env.client.WaitForData(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, DataLine("DATA:7,1,2"), line)
}
