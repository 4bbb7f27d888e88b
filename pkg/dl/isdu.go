package dl

import (
	"log/slog"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
)

// States of the ISDU handler
type isduState uint8

const (
	stateIsduInactive isduState = 0
	stateIsduIdle     isduState = 1
	stateIsduRequest  isduState = 2
	stateIsduWait     isduState = 3
	stateIsduResponse isduState = 4
)

var isduStateMap = map[isduState]string{
	stateIsduInactive: "INACTIVE",
	stateIsduIdle:     "IDLE",
	stateIsduRequest:  "REQUEST",
	stateIsduWait:     "WAIT",
	stateIsduResponse: "RESPONSE",
}

const maxIsduRequestLength = 238

// IsduHandler segments and reassembles ISDU transfers riding on the
// on-request data octets of the ISDU channel
type IsduHandler struct {
	logger          *slog.Logger
	dl              *DL
	state           isduState
	rx              []byte
	tx              []byte
	txReady         bool
	expectedSegment uint8
}

func newIsduHandler(dl *DL, logger *slog.Logger) *IsduHandler {
	return &IsduHandler{
		logger: logger.With("service", "[DL-ISDU]"),
		dl:     dl,
		state:  stateIsduInactive,
	}
}

func (ih *IsduHandler) activate() {
	if ih.state != stateIsduInactive {
		return
	}
	ih.reset()
	ih.state = stateIsduIdle
}

func (ih *IsduHandler) deactivate() {
	if ih.state == stateIsduWait || ih.state == stateIsduResponse {
		ih.dl.al.ISDUAbortInd()
	}
	ih.reset()
	ih.state = stateIsduInactive
}

func (ih *IsduHandler) reset() {
	ih.rx = ih.rx[:0]
	ih.tx = nil
	ih.txReady = false
	ih.expectedSegment = 0
}

// abort drops the ongoing transfer and notifies the application layer
// when a request was already handed over
func (ih *IsduHandler) abort(notify bool) {
	if notify {
		ih.dl.al.ISDUAbortInd()
	}
	ih.reset()
	ih.state = stateIsduIdle
}

// odInd handles one on-request data access on the ISDU channel.
// flowCtrl is the address part of the MC octet, segmentLength the
// on-request data size of the current communication phase.
func (ih *IsduHandler) odInd(dir frame.RWDirection, flowCtrl uint8, segmentLength uint8, data []byte) {
	if ih.state == stateIsduInactive {
		ih.respond(frame.ISDUNoServiceRsp())
		return
	}
	switch {
	case dir == frame.DirWrite && flowCtrl == frame.FlowStart:
		// New request, first segment
		ih.rx = ih.rx[:0]
		ih.rx = append(ih.rx, data...)
		ih.transition(stateIsduIdle, stateIsduRequest, func() {
			ih.tx = nil
			ih.txReady = false
			ih.ackWrite()
		})
	case dir == frame.DirWrite && flowCtrl <= 0x0F:
		if len(ih.rx)+len(data) > maxIsduRequestLength {
			ih.abort(ih.state == stateIsduWait || ih.state == stateIsduResponse)
			return
		}
		ih.rx = append(ih.rx, data...)
		ih.transition(stateIsduRequest, stateIsduRequest, ih.ackWrite)
	case dir == frame.DirRead && flowCtrl == frame.FlowStart:
		switch ih.state {
		case stateIsduRequest:
			// Request transfer complete, hand over to the application
			ih.requestComplete(segmentLength)
		case stateIsduWait:
			if ih.txReady {
				ih.state = stateIsduResponse
				ih.expectedSegment = 0
				ih.sendSegment(0, segmentLength)
			} else {
				ih.respond(frame.ISDUBusyRsp())
			}
		default:
			ih.invalid(dir, flowCtrl)
		}
	case dir == frame.DirRead && flowCtrl <= 0x0F:
		switch ih.state {
		case stateIsduWait:
			ih.respond(frame.ISDUBusyRsp())
		case stateIsduResponse:
			ih.sendSegment(flowCtrl, segmentLength)
		case stateIsduIdle:
			ih.respond(frame.ISDUNoServiceRsp())
		default:
			ih.invalid(dir, flowCtrl)
		}
	case dir == frame.DirRead && flowCtrl == frame.FlowIdle:
		// Master confirmed reception of the full response
		ih.reset()
		ih.state = stateIsduIdle
		ih.respond(frame.ISDUNoServiceRsp())
	case flowCtrl == frame.FlowAbort:
		ih.abort(ih.state == stateIsduWait || ih.state == stateIsduResponse)
		if dir == frame.DirRead {
			ih.respond(frame.ISDUNoServiceRsp())
		} else {
			ih.ackWrite()
		}
	default:
		ih.invalid(dir, flowCtrl)
	}
}

// transition moves from one state to another when the current state
// matches, anything else is a protocol violation and aborts
func (ih *IsduHandler) transition(from, to isduState, action func()) {
	if ih.state != from {
		ih.invalid(0, 0)
		return
	}
	ih.state = to
	action()
}

func (ih *IsduHandler) invalid(dir frame.RWDirection, flowCtrl uint8) {
	ih.logger.Debug("flow control violation",
		"state", isduStateMap[ih.state],
		"dir", dir.String(),
		"flowctrl", flowCtrl,
	)
	ih.abort(ih.state == stateIsduWait || ih.state == stateIsduResponse)
	ih.respond(frame.ISDUNoServiceRsp())
}

func (ih *IsduHandler) requestComplete(segmentLength uint8) {
	// The last segment is padded to the on-request data size
	length, err := frame.ISDURequestLength(ih.rx)
	if err != nil || length > len(ih.rx) {
		ih.logger.Debug("malformed request length")
		ih.abort(false)
		ih.respond(frame.ISDUNoServiceRsp())
		return
	}
	request, err := frame.ParseISDURequest(ih.rx[:length])
	if err != nil {
		ih.logger.Debug("malformed request", "err", err)
		ih.abort(false)
		ih.respond(frame.ISDUNoServiceRsp())
		return
	}
	ih.state = stateIsduWait
	ih.expectedSegment = 0
	ih.respond(frame.ISDUBusyRsp())
	ih.dl.al.ISDUTransportInd(request)
}

// sendSegment serves one response segment of segmentLength octets
func (ih *IsduHandler) sendSegment(segment uint8, segmentLength uint8) {
	if segment != ih.expectedSegment%16 {
		ih.abort(false)
		ih.respond(frame.ISDUNoServiceRsp())
		return
	}
	from := int(segmentLength) * int(ih.expectedSegment)
	if from >= len(ih.tx) {
		ih.abort(false)
		ih.respond(frame.ISDUNoServiceRsp())
		return
	}
	ih.expectedSegment++
	out := make([]byte, segmentLength)
	copy(out, ih.tx[from:])
	ih.respond(out)
}

func (ih *IsduHandler) respond(data []byte) {
	if err := ih.dl.mh.odResponse(data); err != nil {
		ih.logger.Error("od response failed", "err", err)
	}
}

// ackWrite completes a write segment with an empty reply
func (ih *IsduHandler) ackWrite() {
	if err := ih.dl.mh.odResponse(nil); err != nil {
		ih.logger.Error("od response failed", "err", err)
	}
}

// Response entry points used by the application layer

func (ih *IsduHandler) readRsp(data []byte) error {
	pdu, err := frame.ISDUReadSuccessRsp(data)
	if err != nil {
		return err
	}
	ih.tx = pdu
	ih.txReady = true
	return nil
}

func (ih *IsduHandler) writeRsp() error {
	ih.tx = frame.ISDUWriteSuccessRsp()
	ih.txReady = true
	return nil
}

func (ih *IsduHandler) errorRsp(dir frame.RWDirection, errType iolink.ErrorType) error {
	ih.tx = frame.ISDUFailureRsp(dir, errType)
	ih.txReady = true
	return nil
}
