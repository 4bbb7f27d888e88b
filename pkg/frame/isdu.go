package frame

import (
	iolink "github.com/Raghava-Ch/goiolink"
)

// I-Service codes, high nibble of the first ISDU octet
const (
	ISDUNoService         uint8 = 0x0
	ISDUWriteIndex        uint8 = 0x1
	ISDUWriteIndexSub     uint8 = 0x2
	ISDUWriteIndex16Sub   uint8 = 0x3
	ISDUWriteFailure      uint8 = 0x4
	ISDUWriteSuccess      uint8 = 0x5
	ISDUReadIndex         uint8 = 0x9
	ISDUReadIndexSub      uint8 = 0xA
	ISDUReadIndex16Sub    uint8 = 0xB
	ISDUReadFailure       uint8 = 0xC
	ISDUReadSuccess       uint8 = 0xD
	isduLengthCodeExt     uint8 = 0x1
	isduMaxCompactLength  uint8 = 15
	isduMaxResponseLength       = 238
)

// Flow control values carried in the address bits of the MC octet on
// the ISDU channel. Values 0x00..0x0F count the segments of an ongoing
// transfer.
const (
	FlowStart uint8 = 0x10
	FlowIdle  uint8 = 0x11
	FlowAbort uint8 = 0x1F
)

// An ISDURequest is a decoded parameter access request
type ISDURequest struct {
	Index    uint16
	SubIndex uint8
	Data     []byte // nil for read requests
	Dir      RWDirection
}

// isduChecksum is the ChkPDU octet, plain xor over the whole PDU.
// A valid PDU xors to zero.
func isduChecksum(data []byte) uint8 {
	var chk uint8
	for _, b := range data {
		chk ^= b
	}
	return chk
}

// ISDURequestLength returns the total PDU length encoded in the length
// nibble or the extended length octet. Received segments are padded to
// the on-request data size, the result is used to trim the padding.
func ISDURequestLength(pdu []byte) (int, error) {
	if len(pdu) == 0 {
		return 0, iolink.ErrRxMsgLength
	}
	lengthCode := pdu[0] & 0x0F
	if lengthCode == isduLengthCodeExt {
		if len(pdu) < 2 {
			return 0, iolink.ErrRxMsgLength
		}
		return int(pdu[1]), nil
	}
	if lengthCode < 2 {
		return 0, iolink.ErrRxMsgLength
	}
	return int(lengthCode), nil
}

// ParseISDURequest decodes a complete request PDU received from the
// master. It verifies the checksum and the I-Service code.
func ParseISDURequest(pdu []byte) (ISDURequest, error) {
	if len(pdu) < 3 {
		return ISDURequest{}, iolink.ErrRxMsgLength
	}
	if isduChecksum(pdu) != 0 {
		return ISDURequest{}, iolink.ErrChecksum
	}
	service := pdu[0] >> 4
	offset := 1
	if pdu[0]&0x0F == isduLengthCodeExt {
		// Extended length PDU carries a dedicated length octet
		offset = 2
	}
	end := len(pdu) - 1 // trailing ChkPDU
	switch service {
	case ISDUReadIndex:
		return ISDURequest{Index: uint16(pdu[offset]), Dir: DirRead}, nil
	case ISDUReadIndexSub:
		if end < offset+2 {
			return ISDURequest{}, iolink.ErrRxMsgLength
		}
		return ISDURequest{Index: uint16(pdu[offset]), SubIndex: pdu[offset+1], Dir: DirRead}, nil
	case ISDUReadIndex16Sub:
		if end < offset+3 {
			return ISDURequest{}, iolink.ErrRxMsgLength
		}
		index := uint16(pdu[offset]) | uint16(pdu[offset+1])<<8
		return ISDURequest{Index: index, SubIndex: pdu[offset+2], Dir: DirRead}, nil
	case ISDUWriteIndex:
		if end < offset+1 {
			return ISDURequest{}, iolink.ErrRxMsgLength
		}
		return ISDURequest{Index: uint16(pdu[offset]), Data: pdu[offset+1 : end], Dir: DirWrite}, nil
	case ISDUWriteIndexSub:
		if end < offset+2 {
			return ISDURequest{}, iolink.ErrRxMsgLength
		}
		return ISDURequest{Index: uint16(pdu[offset]), SubIndex: pdu[offset+1], Data: pdu[offset+2 : end], Dir: DirWrite}, nil
	case ISDUWriteIndex16Sub:
		if end < offset+3 {
			return ISDURequest{}, iolink.ErrRxMsgLength
		}
		index := uint16(pdu[offset]) | uint16(pdu[offset+1])<<8
		return ISDURequest{Index: index, SubIndex: pdu[offset+2], Data: pdu[offset+3 : end], Dir: DirWrite}, nil
	default:
		return ISDURequest{}, iolink.ErrIllegalArgument
	}
}

// seal appends the ChkPDU octet
func seal(pdu []byte) []byte {
	return append(pdu, isduChecksum(pdu))
}

// ISDUBusyRsp signals that the device application has not produced a
// response yet, the master keeps polling
func ISDUBusyRsp() []byte {
	return []byte{ISDUNoService<<4 | 0x1}
}

// ISDUNoServiceRsp terminates a response exchange
func ISDUNoServiceRsp() []byte {
	return []byte{ISDUNoService << 4}
}

// ISDUWriteSuccessRsp acknowledges a successful parameter write
func ISDUWriteSuccessRsp() []byte {
	return seal([]byte{ISDUWriteSuccess<<4 | 0x2})
}

// ISDUReadSuccessRsp carries read data back to the master.
// Short PDUs encode the total length in the I-Service nibble, longer
// ones use the extended length octet.
func ISDUReadSuccessRsp(data []byte) ([]byte, error) {
	if len(data) > isduMaxResponseLength {
		return nil, iolink.ErrBufferSize
	}
	total := 2 + len(data) // iservice + data + chk
	if total <= int(isduMaxCompactLength) {
		pdu := append([]byte{ISDUReadSuccess<<4 | uint8(total)}, data...)
		return seal(pdu), nil
	}
	pdu := append([]byte{ISDUReadSuccess<<4 | isduLengthCodeExt, uint8(3 + len(data))}, data...)
	return seal(pdu), nil
}

// ISDUFailureRsp reports an error code pair back to the master
func ISDUFailureRsp(dir RWDirection, errType iolink.ErrorType) []byte {
	service := ISDUWriteFailure
	if dir == DirRead {
		service = ISDUReadFailure
	}
	return seal([]byte{service<<4 | 0x4, errType.Code(), errType.AdditionalCode()})
}
