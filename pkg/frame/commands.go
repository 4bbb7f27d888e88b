package frame

import "time"

// MasterCommand values written to direct parameter address 0x00
const (
	MasterCmdFallback         uint8 = 0x5A
	MasterCmdMasterIdent      uint8 = 0x95
	MasterCmdDeviceIdent      uint8 = 0x96
	MasterCmdDeviceStartup    uint8 = 0x97
	MasterCmdPDOutputOperate  uint8 = 0x98
	MasterCmdDeviceOperate    uint8 = 0x99
	MasterCmdDevicePreoperate uint8 = 0x9A
)

// CycleTimeDuration decodes a MasterCycleTime / MinCycleTime octet.
// Bits 7-6 select the time base, bits 5-0 the multiplier.
func CycleTimeDuration(octet uint8) time.Duration {
	multiplier := time.Duration(octet & 0x3F)
	switch octet >> 6 {
	case 0:
		return multiplier * 100 * time.Microsecond
	case 1:
		return 6400*time.Microsecond + multiplier*400*time.Microsecond
	case 2:
		return 32*time.Millisecond + multiplier*1600*time.Microsecond
	default:
		// Reserved time base
		return 0
	}
}
