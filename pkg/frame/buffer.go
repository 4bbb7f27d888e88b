package frame

import (
	iolink "github.com/Raghava-Ch/goiolink"
)

// Communication phase of the device, drives frame layout and length
type DeviceMode uint8

const (
	ModeStartup    DeviceMode = 0
	ModePreoperate DeviceMode = 1
	ModeOperate    DeviceMode = 2
)

var deviceModeMap = map[DeviceMode]string{
	ModeStartup:    "STARTUP",
	ModePreoperate: "PREOPERATE",
	ModeOperate:    "OPERATE",
}

func (m DeviceMode) String() string {
	s, ok := deviceModeMap[m]
	if !ok {
		return "UNKNOWN"
	}
	return s
}

// Sizes holds the configured payload lengths in octets.
// They are fixed per device and negotiated via the m-sequence capability.
type Sizes struct {
	ODPreoperate uint8 // on-request data octets per frame in PREOPERATE
	ODOperate    uint8 // on-request data octets per frame in OPERATE
	PDIn         uint8 // process data octets device -> master
	PDOut        uint8 // process data octets master -> device
}

// ExpectedRxBytes returns the total length of a master frame for the
// given mode and direction, control octets included.
func (s Sizes) ExpectedRxBytes(mode DeviceMode, dir RWDirection) int {
	switch mode {
	case ModeStartup:
		if dir == DirRead {
			return HeaderSize
		}
		return HeaderSize + 1
	case ModePreoperate:
		if dir == DirRead {
			return HeaderSize
		}
		return HeaderSize + int(s.ODPreoperate)
	case ModeOperate:
		if dir == DirRead {
			return HeaderSize + int(s.PDOut)
		}
		return HeaderSize + int(s.PDOut) + int(s.ODOperate)
	default:
		return HeaderSize
	}
}

// RxBuffer accumulates the octets of one master frame
type RxBuffer struct {
	buffer []byte
	sizes  Sizes
}

func NewRxBuffer(sizes Sizes) *RxBuffer {
	size := sizes.ExpectedRxBytes(ModeOperate, DirWrite)
	if preop := sizes.ExpectedRxBytes(ModePreoperate, DirWrite); preop > size {
		size = preop
	}
	if startup := sizes.ExpectedRxBytes(ModeStartup, DirWrite); startup > size {
		size = startup
	}
	return &RxBuffer{buffer: make([]byte, 0, size), sizes: sizes}
}

func (rx *RxBuffer) Push(octet byte) error {
	if len(rx.buffer) == cap(rx.buffer) {
		return iolink.ErrBufferSize
	}
	rx.buffer = append(rx.buffer, octet)
	return nil
}

func (rx *RxBuffer) Len() int {
	return len(rx.buffer)
}

func (rx *RxBuffer) Reset() {
	rx.buffer = rx.buffer[:0]
}

func (rx *RxBuffer) MC() MC {
	if len(rx.buffer) == 0 {
		return 0
	}
	return MC(rx.buffer[0])
}

// ExpectedBytes returns the total frame length once the header has been
// received. Before that it returns the header size.
func (rx *RxBuffer) ExpectedBytes(mode DeviceMode) int {
	if len(rx.buffer) < HeaderSize {
		return HeaderSize
	}
	return rx.sizes.ExpectedRxBytes(mode, rx.MC().Direction())
}

// ValidRequest verifies checksum and m-sequence type of a complete
// master frame. expected is the base type negotiated for the mode.
// It returns the access direction on success.
func (rx *RxBuffer) ValidRequest(mode DeviceMode, expected Type) (RWDirection, error) {
	if len(rx.buffer) < HeaderSize {
		return DirRead, iolink.ErrRxMsgLength
	}
	if !VerifyMaster(rx.buffer) {
		return DirRead, iolink.ErrChecksum
	}
	ckt := CKT(rx.buffer[1])
	if ckt.Type() != expected {
		return DirRead, iolink.ErrMsgType
	}
	return rx.MC().Direction(), nil
}

// OD returns the on-request data of a write request
func (rx *RxBuffer) OD(mode DeviceMode) ([]byte, error) {
	if rx.MC().Direction() == DirRead {
		return nil, iolink.ErrIllegalArgument
	}
	start := HeaderSize
	length := 1
	switch mode {
	case ModePreoperate:
		length = int(rx.sizes.ODPreoperate)
	case ModeOperate:
		start += int(rx.sizes.PDOut)
		length = int(rx.sizes.ODOperate)
	}
	if len(rx.buffer) < start+length {
		return nil, iolink.ErrRxMsgLength
	}
	return rx.buffer[start : start+length], nil
}

// PD returns the output process data, present in OPERATE frames only
func (rx *RxBuffer) PD() ([]byte, error) {
	end := HeaderSize + int(rx.sizes.PDOut)
	if len(rx.buffer) < end {
		return nil, iolink.ErrRxMsgLength
	}
	return rx.buffer[HeaderSize:end], nil
}

// TxBuffer assembles one device reply frame.
// OD and PD sections are filled by the respective handlers, Compile
// appends the CKS octet and seals the checksum.
type TxBuffer struct {
	buffer  []byte
	sizes   Sizes
	odReady bool
	pdReady bool
}

func NewTxBuffer(sizes Sizes) *TxBuffer {
	size := int(sizes.ODOperate) + int(sizes.PDIn) + 1
	if preop := int(sizes.ODPreoperate) + 1; preop > size {
		size = preop
	}
	if size < HeaderSize {
		size = HeaderSize
	}
	return &TxBuffer{buffer: make([]byte, 0, size), sizes: sizes}
}

func (tx *TxBuffer) Reset() {
	tx.buffer = tx.buffer[:0]
	tx.odReady = false
	tx.pdReady = false
}

// InsertOD stores the on-request data section of a read reply.
// An empty slice marks the section ready without occupying octets,
// used for write replies which carry no OD.
func (tx *TxBuffer) InsertOD(mode DeviceMode, od []byte) error {
	if len(od) == 0 {
		tx.odReady = true
		return nil
	}
	var length int
	switch mode {
	case ModeStartup:
		length = 1
	case ModePreoperate:
		length = int(tx.sizes.ODPreoperate)
	case ModeOperate:
		length = int(tx.sizes.ODOperate)
	}
	if len(tx.buffer)+length > cap(tx.buffer) {
		return iolink.ErrBufferSize
	}
	// Short responses are zero padded up to the configured OD length
	for i := 0; i < length; i++ {
		b := byte(0)
		if i < len(od) {
			b = od[i]
		}
		tx.buffer = append(tx.buffer, b)
	}
	tx.odReady = true
	return nil
}

// InsertPD stores the input process data section, OPERATE mode only
func (tx *TxBuffer) InsertPD(pd []byte) error {
	if len(pd) != int(tx.sizes.PDIn) {
		return iolink.ErrIllegalArgument
	}
	if len(tx.buffer)+len(pd) > cap(tx.buffer) {
		return iolink.ErrBufferSize
	}
	tx.buffer = append(tx.buffer, pd...)
	tx.pdReady = true
	return nil
}

// Ready reports whether all sections required for the given mode and
// direction have been inserted
func (tx *TxBuffer) Ready(mode DeviceMode, dir RWDirection) bool {
	switch mode {
	case ModeStartup, ModePreoperate:
		return tx.odReady
	case ModeOperate:
		if dir == DirRead {
			return tx.odReady && tx.pdReady
		}
		return tx.pdReady
	default:
		return false
	}
}

// Compile appends the CKS octet and seals the frame checksum.
// It returns the complete frame ready for transmission.
func (tx *TxBuffer) Compile(mode DeviceMode, dir RWDirection, eventFlag bool, pdStatus PDStatus) ([]byte, error) {
	if !tx.Ready(mode, dir) {
		return nil, iolink.ErrNotActive
	}
	if len(tx.buffer)+1 > cap(tx.buffer) {
		return nil, iolink.ErrBufferSize
	}
	tx.buffer = append(tx.buffer, uint8(NewCKS(eventFlag, pdStatus, 0)))
	sealDevice(tx.buffer, len(tx.buffer)-1)
	return tx.buffer, nil
}
