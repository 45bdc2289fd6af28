// Package env identifies the station a loader runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID scopes the protected machine id so it cannot be correlated with
// other applications on the same host.
const AppID = "amber-prodloader"

// StationID returns a stable identifier of this machine. It falls back to
// the hostname where no machine id is available.
func StationID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:12]
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
