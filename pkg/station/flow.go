package station

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
	"github.com/amber-eeg/prodloader/pkg/lineproto"
	"github.com/amber-eeg/prodloader/pkg/serial"
	"github.com/amber-eeg/prodloader/pkg/validate"
)

const (
	probeBytes       = 500
	serialPrefix     = "Serial:"
	serialNotSet     = "NOT_SET"
	testModeOn       = "Test mode turned on"
	serialSetReply   = "number set to"
	reprogramPrompt  = "Do you want to reprogram this board?"
	successBanner    = "*************     BOARD PROGRAMMING AND TEST SUCCESSFUL    ***************"
	allPassedBanner  = "**************  ALL TESTS PASSED"
	errorBannerStart = "************ ERROR:"
)

// run drives the board through every stage. The link is released on
// success; on failure the caller releases it.
func (s *Session) run(ctx context.Context) error {
	cfg := s.st.Config

	s.enter(StageDetectFirmware)
	s.Record.Log("Checking for data stream")
	running, err := serial.ProbeDataStream(ctx, s.st.Opener, s.Port,
		serial.Mode{BaudRate: RuntimeBaud, ReadTimeout: cfg.Timing.ProbeTimeout}, probeBytes)
	if err != nil {
		return err
	}
	if running {
		s.Record.Log("Programmed board detected")
		if err := s.confirmReprogram(ctx); err != nil {
			return err
		}
	}

	if err := s.flash(ctx); err != nil {
		return err
	}
	if err := s.startRuntime(ctx); err != nil {
		return err
	}
	if err := s.checkBoard(ctx); err != nil {
		return err
	}
	s.Record.Log(allPassedBanner)
	if err := s.assignSerial(ctx); err != nil {
		return err
	}

	s.enter(StageFinalize)
	s.Record.Log(successBanner)
	if err := s.release(); err != nil {
		glog.Warningf("%s: release: %v", s.Port, err)
	}
	s.Record.Log("Remove programmed board and insert new board")
	return nil
}

// confirmReprogram reads the identity of a running board and asks the
// operator whether to overwrite it.
func (s *Session) confirmReprogram(ctx context.Context) error {
	cfg := s.st.Config
	if err := s.openRuntime(ctx, cfg.Timing.ReadTimeout); err != nil {
		return err
	}
	line, err := s.queryRetried(ctx, lineproto.CmdVersion, cfg.Timing.QueryTimeout)
	if err != nil {
		return err
	}
	s.Record.Log("Version:" + line.Text())
	line, err = s.queryRetried(ctx, lineproto.CmdSerial, cfg.Timing.QueryTimeout)
	if err != nil {
		return err
	}
	s.Serial = strings.TrimPrefix(line.Text(), serialPrefix)
	s.Record.Log("Serial number:" + s.Serial)

	s.enter(StageReprogramDecision)
	s.Record.Log(reprogramPrompt)
	yes, err := s.st.Confirmer.Confirm(ctx, reprogramPrompt)
	if err != nil {
		return err
	}
	if !yes {
		return fx.Errorf(fx.KindUserAbort, "Programming CANCELLED")
	}
	s.Reprogram = true
	s.Record.Log("Sending command to enter bootloader")
	if err := s.cli.Send(lineproto.CmdBootloader); err != nil {
		return err
	}
	if err := s.release(); err != nil {
		glog.Warningf("%s: release: %v", s.Port, err)
	}
	return fx.Sleep(ctx, cfg.Timing.BootloaderEntry)
}

// flash connects to the bootloader, writes the image and resets the
// board into it.
func (s *Session) flash(ctx context.Context) error {
	cfg := s.st.Config
	img := s.st.Image

	s.enter(StageConnectBootloader)
	s.Record.Log("Trying to connect to bootloader...")
	err := fx.Retry(ctx, s.policy(cfg.Attempts.Connect, 0, fx.KindTimeout, fx.KindProtocol, fx.KindPort),
		func(context.Context, int) error {
			if err := s.openBootloader(); err != nil {
				return err
			}
			return s.prog.Handshake()
		})
	if err != nil {
		return fx.E(fx.KindOf(err), "Could not connect to bootloader", err)
	}
	s.Record.Log("Connected to bootloader")

	if s.Reprogram {
		s.enter(StageErase)
		s.Record.Log("Erasing module...")
		if err := s.prog.EraseAll(); err != nil {
			return err
		}
		s.Record.Log("Module erased")
	}

	s.enter(StageTransfer)
	s.Record.Log("Programming with " + s.st.ImageName)
	if err := s.prog.Program(ctx, uint32(img.First), img.Bytes(img.First, img.Length())); err != nil {
		return err
	}
	s.Record.Log("Programming successful")

	s.enter(StageReset)
	s.Record.Log("Resetting board")
	if err := s.prog.Reset(); err != nil {
		return err
	}
	s.Record.Logf("Reconfiguring Serial Port for %d baud", RuntimeBaud)
	return s.release()
}

// startRuntime reopens the port at the firmware baud rate and waits for
// the sample stream.
func (s *Session) startRuntime(ctx context.Context) error {
	cfg := s.st.Config

	s.enter(StageReopen)
	if err := s.openRuntime(ctx, cfg.Timing.ReadTimeout); err != nil {
		return err
	}

	s.enter(StageWaitForData)
	s.Record.Log("Waiting for Data to stream")
	if _, err := s.cli.WaitForData(ctx, cfg.Timing.DataWait); err != nil {
		return err
	}

	s.enter(StageVersion)
	s.Record.Log("Getting Versions:")
	line, err := s.queryRetried(ctx, lineproto.CmdVersion, cfg.Timing.LongQuery)
	if err != nil {
		return err
	}
	s.Firmware = line.Text()
	s.Record.Log(s.Firmware)
	return nil
}

// checkBoard runs the supply check then the converter signal check.
func (s *Session) checkBoard(ctx context.Context) error {
	cfg := s.st.Config

	s.enter(StageVoltage)
	s.Record.Log("Checking onboard power supplies:")
	err := fx.Retry(ctx, s.policy(cfg.Attempts.Supply, 0, fx.KindValidation),
		func(ctx context.Context, _ int) error {
			return s.checkSupplies(ctx)
		})
	if err != nil {
		if fx.IsKind(err, fx.KindValidation) {
			return fx.E(fx.KindValidation, "POWER SUPPLY CHECK FAILED", err)
		}
		return err
	}
	s.Record.Log("Power supplies PASSED")
	if err := fx.Sleep(ctx, cfg.Timing.PowerSettle); err != nil {
		return err
	}

	s.enter(StageSignal)
	s.Record.Log("Checking ADS1299:")
	err = fx.Retry(ctx, s.policy(cfg.Attempts.Signal, 0, fx.KindValidation),
		func(ctx context.Context, _ int) error {
			return s.checkSignal(ctx)
		})
	if err != nil {
		if fx.IsKind(err, fx.KindValidation) {
			return fx.E(fx.KindValidation, "ADS1299 CHECK FAILED", err)
		}
		return err
	}
	return nil
}

func (s *Session) checkSupplies(ctx context.Context) error {
	line, err := s.query(ctx, lineproto.CmdDiag, s.st.Config.Timing.LongQuery)
	if err != nil {
		return err
	}
	supplies, err := validate.ParseDiag(string(line))
	if err != nil {
		return err
	}
	table, err := validate.CheckSupplies(supplies, s.st.Config.Supplies)
	s.Record.Log(table...)
	return err
}

func (s *Session) checkSignal(ctx context.Context) error {
	cfg := s.st.Config

	s.Record.Log("Turning channels off")
	if _, err := s.query(ctx, lineproto.CmdChannelOff, cfg.Timing.QueryTimeout); err != nil {
		return err
	}
	s.Record.Log("Sending test command")
	line, err := s.query(ctx, lineproto.CmdTestMode, cfg.Timing.QueryTimeout)
	if err != nil {
		return err
	}
	if !strings.Contains(line.Text(), testModeOn) {
		return fx.Errorf(fx.KindProtocol, "Incorrect response to test command:%s", line)
	}
	if err := fx.Sleep(ctx, cfg.Timing.TestSettle); err != nil {
		return err
	}

	s.Record.Logf("Gathering %g seconds of data", cfg.Timing.Capture.Seconds())
	s.rx.StartCapture()
	err = fx.Sleep(ctx, cfg.Timing.Capture)
	lines := s.rx.StopCapture()
	if err != nil {
		return err
	}
	s.Record.Log("Acquisition complete, analyzing...")
	r := validate.Validate(lines, cfg.Limits)
	s.Record.Log(r.Lines()...)
	s.Frequency = r.Frequency
	return r.Err()
}

// assignSerial keeps a serial number already stored on the board or
// assigns the next one of this station run.
func (s *Session) assignSerial(ctx context.Context) error {
	cfg := s.st.Config

	s.enter(StageSerial)
	s.Record.Log("Checking serial number...")
	line, err := s.queryRetried(ctx, lineproto.CmdSerial, cfg.Timing.QueryTimeout)
	if err != nil {
		return err
	}
	text := line.Text()
	if !strings.Contains(text, serialNotSet) {
		s.Serial = strings.TrimPrefix(text, serialPrefix)
		s.Append = true
		s.Record.Log("Serial number previously set to:"+s.Serial, "******* Cannot be changed *******")
		return nil
	}

	s.Serial = s.st.nextSerial()
	s.Append = false
	if !cfg.SetSerial {
		s.Record.Log("Not setting serial number at this time")
		return nil
	}
	s.Record.Log("Setting serial number to " + s.Serial)
	line, err = s.query(ctx, lineproto.CmdSetSerial+" "+s.Serial, cfg.Timing.QueryTimeout)
	if err != nil {
		return err
	}
	if !strings.Contains(line.Text(), serialSetReply) {
		return fx.Errorf(fx.KindProtocol, "Serial not set correctly:%s", line)
	}
	s.Record.Log("Serial number set correctly")
	return nil
}

func errorBanner(err error) string {
	return fmt.Sprintf("%s%v", errorBannerStart, err)
}
