package board

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amber-eeg/prodloader/pkg/bootloader"
	fx "github.com/amber-eeg/prodloader/pkg/framework"
	"github.com/amber-eeg/prodloader/pkg/lineproto"
	"github.com/amber-eeg/prodloader/pkg/serial"
	"github.com/amber-eeg/prodloader/pkg/validate"
)

func testConfig() Config {
	cfg := *NewConfig()
	cfg.SampleEvery = 50 * time.Microsecond
	return cfg
}

func TestBoardListsWhenPlugged(t *testing.T) {
	b := New(testConfig())
	ports, err := b.ListPorts()
	require.NoError(t, err)
	require.Equal(t, []string{"/dev/ttyS0"}, ports)

	_, err = b.Open("/dev/ttySIM0", serial.Mode{BaudRate: BootloaderBaud})
	require.Error(t, err)

	b.Plug()
	ports, _ = b.ListPorts()
	require.Equal(t, []string{"/dev/ttyS0", "/dev/ttySIM0"}, ports)

	p, err := b.Open("/dev/ttySIM0", serial.Mode{BaudRate: BootloaderBaud})
	require.NoError(t, err)
	_, err = b.Open("/dev/ttySIM0", serial.Mode{BaudRate: BootloaderBaud})
	require.Error(t, err)
	require.NoError(t, p.Close())
}

func TestBoardBootloader(t *testing.T) {
	cfg := testConfig()
	cfg.DropAcks = 1
	b := New(cfg)
	b.Plug()

	link, err := serial.Open(b, cfg.Port, serial.Mode{BaudRate: BootloaderBaud, ReadTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer link.Close()

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	p := bootloader.New(link)
	require.NoError(t, p.Handshake())
	require.NoError(t, p.EraseAll())
	require.NoError(t, p.Program(context.Background(), 0, data))
	require.NoError(t, p.Reset())
	require.Equal(t, data, b.Flash())
	require.True(t, b.Erased())
	require.Equal(t, ModeRuntime, b.Mode())

	// the runtime firmware does not answer at the bootloader baud rate
	require.Error(t, p.Handshake())
}

func TestBoardProbe(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	b.Plug()
	mode := serial.Mode{BaudRate: RuntimeBaud, ReadTimeout: 20 * time.Millisecond}
	ok, err := serial.ProbeDataStream(context.Background(), b, cfg.Port, mode, 500)
	require.NoError(t, err)
	require.False(t, ok)

	cfg.Programmed = true
	b = New(cfg)
	b.Plug()
	ok, err = serial.ProbeDataStream(context.Background(), b, cfg.Port, mode, 500)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBoardShellAndStream(t *testing.T) {
	cfg := testConfig()
	cfg.Programmed = true
	cfg.MuteCli = 1
	b := New(cfg)
	b.Plug()

	link, err := serial.Open(b, cfg.Port, serial.Mode{BaudRate: RuntimeBaud, ReadTimeout: 5 * time.Millisecond})
	require.NoError(t, err)
	defer link.Close()
	rx := lineproto.NewReceiver(link)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-rx.Done()
	}()
	go rx.Run(ctx)
	client := lineproto.NewClient(link, rx)
	policy := fx.Policy{Attempts: 3, Timeout: 50 * time.Millisecond}

	line, err := client.Query(ctx, lineproto.CmdVersion, policy)
	require.NoError(t, err)
	require.Equal(t, cfg.Firmware, line.Text())

	line, err = client.Query(ctx, lineproto.CmdSerial, policy)
	require.NoError(t, err)
	require.Equal(t, "Serial:NOT_SET", line.Text())

	line, err = client.Query(ctx, lineproto.CmdTestMode, policy)
	require.NoError(t, err)
	require.Equal(t, "Test mode turned on", line.Text())

	rx.StartCapture()
	time.Sleep(100 * time.Millisecond)
	lines := rx.StopCapture()
	require.True(t, len(lines) > 200, "captured %d lines", len(lines))
	r := validate.Validate(lines, validate.DefaultLimits())
	require.True(t, r.Passed(), "%v", r.Err())

	require.Equal(t, []string{"ver", "ver", "ser", "test"}, b.Commands())
}
