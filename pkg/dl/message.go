package dl

import (
	"log/slog"
	"time"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
)

const (
	deviceStartup    = frame.ModeStartup
	devicePreoperate = frame.ModePreoperate
	deviceOperate    = frame.ModeOperate
)

// States of the message handler
type mhState uint8

const (
	stateMhInactive      mhState = 0
	stateMhIdle          mhState = 1
	stateMhGetMessage    mhState = 2
	stateMhCheckMessage  mhState = 3
	stateMhCreateMessage mhState = 4
)

var mhStateMap = map[mhState]string{
	stateMhInactive:      "INACTIVE",
	stateMhIdle:          "IDLE",
	stateMhGetMessage:    "GETMESSAGE",
	stateMhCheckMessage:  "CHECKMESSAGE",
	stateMhCreateMessage: "CREATEMESSAGE",
}

// MessageHandler receives master frames octet by octet, validates them
// and assembles the device reply
type MessageHandler struct {
	logger *slog.Logger
	dl     *DL
	state  mhState

	rx       *frame.RxBuffer
	tx       *frame.TxBuffer
	expected int
	dir      frame.RWDirection

	deviceMode frame.DeviceMode
	rate       iolink.TransmissionRate

	eventFlag bool
	pdStatus  frame.PDStatus

	masterCycleTime time.Duration
	cycleDeadline   time.Time
	cycleActive     bool
	uartDeadline    time.Time
	uartActive      bool
}

func newMessageHandler(dl *DL, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		logger:     logger.With("service", "[DL-MH]"),
		dl:         dl,
		state:      stateMhInactive,
		rx:         frame.NewRxBuffer(dl.cfg.Sizes),
		tx:         frame.NewTxBuffer(dl.cfg.Sizes),
		deviceMode: deviceStartup,
		pdStatus:   frame.PDInvalid,
	}
}

func (mh *MessageHandler) activate(rate iolink.TransmissionRate) {
	if mh.state != stateMhInactive {
		return
	}
	mh.rate = rate
	mh.deviceMode = deviceStartup
	mh.rx.Reset()
	mh.tx.Reset()
	mh.state = stateMhIdle
	mh.logger.Debug("activated", "rate", rate.String())
}

func (mh *MessageHandler) deactivate() {
	mh.cycleActive = false
	mh.uartActive = false
	mh.rx.Reset()
	mh.tx.Reset()
	mh.state = stateMhInactive
}

func (mh *MessageHandler) setRate(rate iolink.TransmissionRate) {
	mh.rate = rate
}

func (mh *MessageHandler) setDeviceMode(mode frame.DeviceMode) {
	mh.deviceMode = mode
}

// setMasterCycleTime configures the cycle supervision from the decoded
// MasterCycleTime parameter. Zero disables supervision.
func (mh *MessageHandler) setMasterCycleTime(d time.Duration) {
	mh.masterCycleTime = d
}

// setEventFlag controls the event flag bit of the next CKS octet
func (mh *MessageHandler) setEventFlag(flag bool) {
	mh.eventFlag = flag
}

// setPDStatus controls the PD status bit of the next CKS octet
func (mh *MessageHandler) setPDStatus(status frame.PDStatus) {
	mh.pdStatus = status
}

// rxByte feeds one received octet into the handler
func (mh *MessageHandler) rxByte(octet byte, now time.Time) {
	switch mh.state {
	case stateMhIdle:
		mh.rx.Reset()
		if mh.rx.Push(octet) != nil {
			return
		}
		if mh.masterCycleTime > 0 {
			// Twice the configured cycle time as supervision window
			mh.cycleDeadline = now.Add(2 * mh.masterCycleTime)
			mh.cycleActive = true
		}
		mh.uartDeadline = now.Add(frame.MaxUARTFrameTime(mh.rate))
		mh.uartActive = true
		mh.state = stateMhGetMessage
		mh.checkComplete()
	case stateMhGetMessage:
		if mh.rx.Push(octet) != nil {
			// Longer than any valid frame, drop and resynchronize
			mh.abortReception()
			return
		}
		mh.uartDeadline = now.Add(frame.MaxUARTFrameTime(mh.rate))
		mh.checkComplete()
	default:
		// Octet while busy with the previous frame, ignore
		mh.logger.Debug("dropped octet", "state", mhStateMap[mh.state])
	}
}

func (mh *MessageHandler) checkComplete() {
	if mh.rx.Len() < frame.HeaderSize {
		return
	}
	mh.expected = mh.rx.ExpectedBytes(mh.deviceMode)
	if mh.rx.Len() >= mh.expected {
		mh.uartActive = false
		mh.state = stateMhCheckMessage
	}
}

func (mh *MessageHandler) abortReception() {
	mh.uartActive = false
	mh.rx.Reset()
	mh.state = stateMhIdle
}

// odResponse inserts the on-request data section of the reply.
// nil marks the section complete for write replies.
func (mh *MessageHandler) odResponse(data []byte) error {
	return mh.tx.InsertOD(mh.deviceMode, data)
}

// pdResponse inserts the input process data section of the reply
func (mh *MessageHandler) pdResponse(data []byte) error {
	return mh.tx.InsertPD(data)
}

// poll runs timer supervision and the frame check / reply phases
func (mh *MessageHandler) poll(now time.Time) {
	if mh.state == stateMhInactive {
		return
	}
	if mh.uartActive && now.After(mh.uartDeadline) {
		// Master stopped transmitting mid frame
		mh.logger.Debug("uart frame timeout", "received", mh.rx.Len())
		mh.abortReception()
	}
	if mh.cycleActive && now.After(mh.cycleDeadline) {
		// Non-fatal timing fault, the phase is kept and supervision
		// rearms with the next frame
		mh.cycleActive = false
		mh.logger.Warn("master cycle time exceeded")
		mh.abortReception()
	}

	switch mh.state {
	case stateMhCheckMessage:
		mh.checkMessage()
	case stateMhCreateMessage:
		mh.createMessage()
	}
}

func (mh *MessageHandler) checkMessage() {
	dir, err := mh.rx.ValidRequest(mh.deviceMode, mh.dl.cfg.typeFor(mh.deviceMode))
	switch err {
	case nil:
	case iolink.ErrChecksum:
		// Transmission error, drop silently and wait for the retry
		mh.logger.Debug("checksum mismatch, frame dropped")
		mh.abortReception()
		return
	default:
		_ = mh.dl.mode.processEvent(evIllegalMsgType)
		mh.abortReception()
		return
	}

	mh.dir = dir
	mh.tx.Reset()
	if mh.deviceMode == deviceOperate && mh.dl.pdActive {
		pd, err := mh.rx.PD()
		if err == nil {
			mh.dl.pdOutputInd(pd)
		}
	}
	var odData []byte
	if dir == frame.DirWrite {
		odData, _ = mh.rx.OD(mh.deviceMode)
	}
	mc := mh.rx.MC()
	mh.state = stateMhCreateMessage
	mh.dl.odInd(dir, mc.Channel(), mc.Address(), odData)
}

func (mh *MessageHandler) createMessage() {
	if !mh.tx.Ready(mh.deviceMode, mh.dir) {
		return
	}
	data, err := mh.tx.Compile(mh.deviceMode, mh.dir, mh.eventFlag, mh.pdStatus)
	if err != nil {
		mh.logger.Error("reply compilation failed", "err", err)
		mh.abortReception()
		return
	}
	if err := mh.dl.transceiver.Send(data); err != nil {
		mh.logger.Error("reply transmission failed", "err", err)
	}
	mh.rx.Reset()
	mh.tx.Reset()
	mh.state = stateMhIdle
}
