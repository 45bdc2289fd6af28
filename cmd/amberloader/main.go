package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/amber-eeg/prodloader/pkg/cli/sh"
	"github.com/amber-eeg/prodloader/pkg/config"
	fx "github.com/amber-eeg/prodloader/pkg/framework"
	"github.com/amber-eeg/prodloader/pkg/hexfile"
	"github.com/amber-eeg/prodloader/pkg/report"
	"github.com/amber-eeg/prodloader/pkg/sim/board"
	"github.com/amber-eeg/prodloader/pkg/station"
)

func init() {
	config.SetupFlags()
	board.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	base := config.Default()
	keep := config.SetFlags()
	if flag.NArg() > 0 {
		base.Image = flag.Arg(0)
		keep = append(keep, "image")
	}
	conf, err := base.Load(keep...)
	if err != nil {
		glog.Exitf("config: %v", err)
	}

	console := sh.New()
	defer console.Close()
	fmt.Fprintf(console, "Loading %s\n", conf.Image)
	img, err := hexfile.Load(conf.Image)
	if err != nil {
		glog.Exitf("ERROR:Loading %s:%v", conf.Image, err)
	}
	fmt.Fprintf(console, "%d bytes loaded\n", img.Length())

	st := station.New(conf, img)
	st.Console = console
	st.Confirmer = console

	runner := fx.NewRunner().HandleSignals()
	if conf.Simulate {
		b := board.New(*board.NewConfig())
		st.Lister, st.Opener = b, b
		go func() {
			if fx.Sleep(runner.Context, time.Second) == nil {
				glog.Info("simulated board plugged")
				b.Plug()
			}
		}()
	}
	if _, err := st.Lister.ListPorts(); err != nil {
		glog.Exitf("enumerate serial ports: %v", err)
	}

	reg := report.NewRegistry()
	st.Metrics = report.NewMetrics(reg)
	var reporters report.Reporters
	if conf.Ledger.Filename != "" {
		ledger := report.NewLedger(conf.Ledger)
		defer ledger.Close()
		reporters = append(reporters, ledger)
	}
	if conf.MQTTURL != "" {
		bus, err := report.NewBus(conf.MQTTURL)
		if err != nil {
			glog.Exitf("mqtt: %v", err)
		}
		if err := bus.Connect(runner.Context); err != nil {
			glog.Exitf("mqtt connect %s: %v", conf.MQTTURL, err)
		}
		defer bus.Close()
		reporters = append(reporters, bus)
	}
	if len(reporters) > 0 {
		st.Reporter = reporters
	}

	runner.Go(fx.NamedRun("station", fx.RunFunc(st.Run)))
	if conf.MetricsAddr != "" {
		runner.Go(fx.NamedRun("metrics", fx.RunFunc(func(ctx context.Context) error {
			return serveMetrics(ctx, conf.MetricsAddr, report.Handler(reg))
		})))
	}
	if err := runner.Wait(); err != nil {
		glog.Errorf("station stopped: %v", err)
	}
}

func serveMetrics(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux}
	return fx.RunWithContextCancel(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}, func() error {
		glog.Infof("metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
