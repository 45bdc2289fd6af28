package serial

import (
	"bytes"
	"context"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// DataMarker prefixes streamed sample lines.
var DataMarker = []byte("DATA:")

// ProbeDataStream opens name, reads up to n bytes and reports whether a
// sample line was seen, i.e. whether application firmware is running.
// The link is closed before returning.
func ProbeDataStream(ctx context.Context, opener Opener, name string, mode Mode, n int) (bool, error) {
	link, err := Open(opener, name, mode)
	if err != nil {
		return false, err
	}
	var got []byte
	err = fx.RunWithContextCloser(ctx, link, func() (err error) {
		got, err = link.ReadBytes(n)
		return err
	})
	if err != nil {
		return false, err
	}
	return bytes.Contains(got, DataMarker), nil
}
