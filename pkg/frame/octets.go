// Package frame implements the M-sequence wire format : control octets,
// device transmit and master receive buffers, and the 6 bit frame checksum.
package frame

import (
	"time"

	iolink "github.com/Raghava-Ch/goiolink"
)

// Direction of an on-request data access, seen from the master
type RWDirection uint8

const (
	DirWrite RWDirection = 0
	DirRead  RWDirection = 1
)

func (d RWDirection) String() string {
	if d == DirRead {
		return "READ"
	}
	return "WRITE"
}

// Communication channel addressed by the MC octet
type Channel uint8

const (
	ChannelProcess   Channel = 0
	ChannelPage      Channel = 1
	ChannelDiagnosis Channel = 2
	ChannelISDU      Channel = 3
)

var channelMap = map[Channel]string{
	ChannelProcess:   "PROCESS",
	ChannelPage:      "PAGE",
	ChannelDiagnosis: "DIAGNOSIS",
	ChannelISDU:      "ISDU",
}

func (c Channel) String() string {
	s, ok := channelMap[c]
	if !ok {
		return "UNKNOWN"
	}
	return s
}

// M-sequence base type carried in the CKT octet
type Type uint8

const (
	Type0 Type = 0
	Type1 Type = 1
	Type2 Type = 2
)

// Status of the process data transmitted by the device
type PDStatus uint8

const (
	PDValid   PDStatus = 0
	PDInvalid PDStatus = 1
)

// MC is the M-sequence control octet sent by the master.
// Bit 7 is the R/W flag, bits 6-5 the communication channel and
// bits 4-0 the address or flow control value.
type MC uint8

func NewMC(dir RWDirection, channel Channel, address uint8) MC {
	return MC(uint8(dir)<<7 | uint8(channel)<<5 | address&0x1F)
}

func (mc MC) Direction() RWDirection {
	return RWDirection(mc >> 7)
}

func (mc MC) Channel() Channel {
	return Channel(mc >> 5 & 0x03)
}

func (mc MC) Address() uint8 {
	return uint8(mc) & 0x1F
}

// CKT is the checksum / M-sequence type octet sent by the master.
// Bits 7-6 hold the M-sequence type, bits 5-0 the 6 bit checksum.
type CKT uint8

func NewCKT(mtype Type, checksum uint8) CKT {
	return CKT(uint8(mtype)<<6 | checksum&checksumMask)
}

func (ckt CKT) Type() Type {
	return Type(ckt >> 6)
}

func (ckt CKT) Checksum() uint8 {
	return uint8(ckt) & checksumMask
}

// CKS is the checksum / status octet sent by the device.
// Bit 7 is the event flag, bit 6 the PD status and bits 5-0 the checksum.
type CKS uint8

func NewCKS(eventFlag bool, pdStatus PDStatus, checksum uint8) CKS {
	cks := CKS(checksum & checksumMask)
	if eventFlag {
		cks |= 1 << 7
	}
	cks |= CKS(pdStatus) << 6
	return cks
}

func (cks CKS) EventFlag() bool {
	return cks>>7 == 1
}

func (cks CKS) PDStatus() PDStatus {
	return PDStatus(cks >> 6 & 0x01)
}

func (cks CKS) Checksum() uint8 {
	return uint8(cks) & checksumMask
}

// Every M-sequence from the master starts with MC and CKT
const HeaderSize = 2

// MaxUARTFrameTime is the transmission time of one UART frame (11 TBIT)
// plus the maximum of t1 (1 TBIT), 12 TBIT in total.
func MaxUARTFrameTime(rate iolink.TransmissionRate) time.Duration {
	return 12 * rate.BitTime()
}
