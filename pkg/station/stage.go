package station

// Stage is a step of a board session.
type Stage int

// Board session stages, in order.
const (
	StageWaitForPort Stage = iota
	StageDetectFirmware
	StageReprogramDecision
	StageConnectBootloader
	StageErase
	StageTransfer
	StageReset
	StageReopen
	StageWaitForData
	StageVersion
	StageVoltage
	StageSignal
	StageSerial
	StageFinalize
)

var stageNames = [...]string{
	"wait_for_port",
	"detect_firmware",
	"reprogram_decision",
	"connect_bootloader",
	"erase",
	"transfer",
	"reset",
	"reopen",
	"wait_for_data",
	"version",
	"voltage",
	"signal",
	"serial",
	"finalize",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
