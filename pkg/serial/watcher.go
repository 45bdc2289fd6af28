package serial

import (
	"context"
	"sort"
	"time"

	"github.com/golang/glog"
	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// Lister lists the serial ports currently present.
type Lister interface {
	ListPorts() ([]string, error)
}

// ListFunc is the func form of Lister.
type ListFunc func() ([]string, error)

// ListPorts implements Lister.
func (f ListFunc) ListPorts() ([]string, error) {
	return f()
}

// EnumeratorLister lists ports using the detailed enumerator and falls
// back to the plain port list where it is unsupported.
type EnumeratorLister struct {
	// USBOnly drops ports not backed by a USB device.
	USBOnly bool
}

// ListPorts implements Lister.
func (e EnumeratorLister) ListPorts() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		glog.V(2).Infof("detailed port enumeration failed: %v", err)
		names, err := bugst.GetPortsList()
		if err != nil {
			return nil, fx.E(fx.KindPort, "list ports", err)
		}
		return names, nil
	}
	names := make([]string, 0, len(details))
	for _, d := range details {
		if e.USBOnly && !d.IsUSB {
			continue
		}
		if d.IsUSB {
			glog.V(4).Infof("port %s usb %s:%s serial %q", d.Name, d.VID, d.PID, d.SerialNumber)
		}
		names = append(names, d.Name)
	}
	return names, nil
}

// Watcher detects newly attached ports by polling a Lister.
type Watcher struct {
	Lister   Lister
	Interval time.Duration
	// OnPoll is called after each snapshot that found nothing new.
	OnPoll func()
}

// WaitForNewPort returns the first port present in a snapshot but absent
// from the one before it.
func (w *Watcher) WaitForNewPort(ctx context.Context) (string, error) {
	prev, err := w.snapshot()
	if err != nil {
		return "", err
	}
	for {
		if err := fx.Sleep(ctx, w.Interval); err != nil {
			return "", err
		}
		cur, err := w.snapshot()
		if err != nil {
			return "", err
		}
		var added []string
		for name := range cur {
			if !prev[name] {
				added = append(added, name)
			}
		}
		if len(added) > 0 {
			sort.Strings(added)
			return added[0], nil
		}
		if w.OnPoll != nil {
			w.OnPoll()
		}
		prev = cur
	}
}

func (w *Watcher) snapshot() (map[string]bool, error) {
	names, err := w.Lister.ListPorts()
	if err != nil {
		return nil, fx.E(fx.KindPort, "list ports", err)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}
