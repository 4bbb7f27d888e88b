// Package param implements the parameter address space of the device :
// the direct parameter pages reachable over the page channel and the
// index / subindex space reachable over ISDU.
package param

import (
	iolink "github.com/Raghava-Ch/goiolink"
)

// Attribute bitmask of a parameter, controls master access rights
type Attribute uint8

const (
	AttributeRead  Attribute = 0x01
	AttributeWrite Attribute = 0x02
	AttributeRw    Attribute = AttributeRead | AttributeWrite
)

// Direct Parameter Page 1 addresses, one octet each
const (
	AddrMasterCommand       uint8 = 0x00
	AddrMasterCycleTime     uint8 = 0x01
	AddrMinCycleTime        uint8 = 0x02
	AddrMSequenceCapability uint8 = 0x03
	AddrRevisionID          uint8 = 0x04
	AddrProcessDataIn       uint8 = 0x05
	AddrProcessDataOut      uint8 = 0x06
	AddrVendorID1           uint8 = 0x07
	AddrVendorID2           uint8 = 0x08
	AddrDeviceID1           uint8 = 0x09
	AddrDeviceID2           uint8 = 0x0A
	AddrDeviceID3           uint8 = 0x0B
	AddrFunctionID1         uint8 = 0x0C
	AddrFunctionID2         uint8 = 0x0D
	AddrReserved            uint8 = 0x0E
	AddrSystemCommand       uint8 = 0x0F
)

// Well known parameter indices
const (
	IndexDirectPage1   uint16 = 0x0000
	IndexDirectPage2   uint16 = 0x0001
	IndexSystemCommand uint16 = 0x0002
	IndexDataStorage   uint16 = 0x0003
	IndexVendorName    uint16 = 0x0010
	IndexProductName   uint16 = 0x0012
)

// Data storage object subindices
const (
	SubDsCommand       uint8 = 0x01
	SubDsStateProperty uint8 = 0x02
	SubDsSize          uint8 = 0x03
	SubDsChecksum      uint8 = 0x04
	SubDsIndexList     uint8 = 0x05
)

// System commands written to AddrSystemCommand or IndexSystemCommand
const (
	CommandParamUploadStart       uint8 = 0x01
	CommandParamUploadEnd         uint8 = 0x02
	CommandParamDownloadStart     uint8 = 0x03
	CommandParamDownloadEnd       uint8 = 0x04
	CommandParamDownloadStore     uint8 = 0x05
	CommandParamBreak             uint8 = 0x06
	CommandDeviceReset            uint8 = 0x80
	CommandApplicationReset       uint8 = 0x81
	CommandRestoreFactorySettings uint8 = 0x82
	CommandBackToBox              uint8 = 0x83
)

// Data storage commands written to IndexDataStorage / SubDsCommand
const (
	DsCommandUploadStart   uint8 = 0x01
	DsCommandDownloadStart uint8 = 0x02
	DsCommandBreak         uint8 = 0x03
)

// PageLocation maps a direct parameter page address to its index and
// subindex. Addresses 0x00..0x0F live on page 1, 0x10..0x1F on page 2.
func PageLocation(address uint8) (index uint16, subIndex uint8, err error) {
	if address > 0x1F {
		return 0, 0, iolink.ErrIllegalArgument
	}
	if address <= 0x0F {
		return IndexDirectPage1, address, nil
	}
	return IndexDirectPage2, address, nil
}
