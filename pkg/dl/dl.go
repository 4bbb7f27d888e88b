// Package dl implements the device side data link layer : message
// handler, DL-mode handler, ISDU handler and event handler. All state
// machines are driven by a deterministic two phase polling model,
// received octets are queued and side effects run inside Poll.
package dl

import (
	"log/slog"
	"sync"
	"time"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/internal/fifo"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
	"github.com/Raghava-Ch/goiolink/pkg/param"
)

const rxFifoSize = 64

// Config of the data link layer, fixed per device
type Config struct {
	Sizes          frame.Sizes
	Rate           iolink.TransmissionRate
	PreoperateType frame.Type
	OperateType    frame.Type
}

// typeFor returns the m-sequence base type expected in a mode
func (c Config) typeFor(mode frame.DeviceMode) frame.Type {
	switch mode {
	case devicePreoperate:
		return c.PreoperateType
	case deviceOperate:
		return c.OperateType
	default:
		return frame.Type0
	}
}

// odLengthFor returns the on-request data octets per frame in a mode
func (c Config) odLengthFor(mode frame.DeviceMode) uint8 {
	switch mode {
	case devicePreoperate:
		return c.Sizes.ODPreoperate
	case deviceOperate:
		return c.Sizes.ODOperate
	default:
		return 1
	}
}

// SMBridge receives the data link indications consumed by system
// management
type SMBridge interface {
	DLModeInd(mode Mode, rate iolink.TransmissionRate)
	DLWriteInd(address uint8, value byte)
	DLReadInd(address uint8, value byte)
}

// ALBridge receives the data link indications consumed by the
// application layer
type ALBridge interface {
	ISDUTransportInd(request frame.ISDURequest)
	ISDUAbortInd()
	PDOutputInd(data []byte)
	PDInputReq() (data []byte, valid bool)
}

// DL aggregates the data link layer handlers of one device
type DL struct {
	logger      *slog.Logger
	cfg         Config
	transceiver iolink.Transceiver
	store       *param.Store
	sm          SMBridge
	al          ALBridge

	mh     *MessageHandler
	mode   *ModeHandler
	isdu   *IsduHandler
	events *EventHandler

	mu     sync.Mutex
	rxFifo *fifo.Fifo

	odActive      bool
	pdActive      bool
	isduActive    bool
	eventActive   bool
	commandActive bool
	pdOutValid    bool
}

func NewDL(
	cfg Config,
	store *param.Store,
	transceiver iolink.Transceiver,
	sm SMBridge,
	al ALBridge,
	logger *slog.Logger,
) (*DL, error) {
	if store == nil || transceiver == nil || sm == nil || al == nil || logger == nil {
		return nil, iolink.ErrIllegalArgument
	}
	dl := &DL{
		logger:      logger.With("service", "[DL]"),
		cfg:         cfg,
		transceiver: transceiver,
		store:       store,
		sm:          sm,
		al:          al,
		rxFifo:      fifo.NewFifo(rxFifoSize),
	}
	dl.mh = newMessageHandler(dl, logger)
	dl.mode = newModeHandler(dl, logger)
	dl.isdu = newIsduHandler(dl, logger)
	dl.events = newEventHandler(dl, logger)
	return dl, nil
}

// Handle implements [iolink.OctetListener], called from the
// transceiver reception routine
func (dl *DL) Handle(octet byte) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if !dl.rxFifo.Push(octet) {
		dl.logger.Warn("rx fifo overflow, octet dropped")
	}
}

// Mode returns the current DL mode indication value
func (dl *DL) Mode() Mode {
	return dl.mode.Mode()
}

// WakeUp signals a wake-up request detected by the physical layer
func (dl *DL) WakeUp() error {
	return dl.mode.processEvent(evWakeUp)
}

// ComEstablished signals a successfully detected transmission rate
func (dl *DL) ComEstablished(rate iolink.TransmissionRate) error {
	return dl.mode.comEstablished(rate)
}

// SendEvents queues diagnosis events for readout by the master
func (dl *DL) SendEvents(events []Event) error {
	return dl.events.Send(events)
}

// ISDUReadRsp completes a pending ISDU read with data
func (dl *DL) ISDUReadRsp(data []byte) error {
	return dl.isdu.readRsp(data)
}

// ISDUWriteRsp completes a pending ISDU write successfully
func (dl *DL) ISDUWriteRsp() error {
	return dl.isdu.writeRsp()
}

// ISDUErrorRsp completes a pending ISDU transfer with an error
func (dl *DL) ISDUErrorRsp(dir frame.RWDirection, errType iolink.ErrorType) error {
	return dl.isdu.errorRsp(dir, errType)
}

// PDOutputValid reports whether the master declared its output process
// data valid via the PDOutputOperate command
func (dl *DL) PDOutputValid() bool {
	return dl.pdOutValid
}

// SetMasterCycleTime updates the cycle supervision of the message
// handler, decoded from the MasterCycleTime parameter
func (dl *DL) SetMasterCycleTime(octet uint8) {
	dl.mh.setMasterCycleTime(frame.CycleTimeDuration(octet))
}

// Poll runs one processing cycle : queued octets first, then the
// pending transitions and timers of every handler
func (dl *DL) Poll(now time.Time) {
	for {
		dl.mu.Lock()
		octet, ok := dl.rxFifo.Pop()
		dl.mu.Unlock()
		if !ok {
			break
		}
		dl.mh.rxByte(octet, now)
		// Complete frames are handled before the next octet
		dl.mh.poll(now)
	}
	dl.mh.poll(now)
	dl.mode.poll(now)
}

// pdOutputInd forwards received output process data to the
// application layer
func (dl *DL) pdOutputInd(data []byte) {
	dl.al.PDOutputInd(data)
}

// modeInd forwards a DL mode change to system management
func (dl *DL) modeInd(mode Mode, rate iolink.TransmissionRate) {
	dl.logger.Info("mode indication", "mode", mode.String())
	dl.sm.DLModeInd(mode, rate)
}

// deactivateAll stops every handler, used on fallback and SIO return
func (dl *DL) deactivateAll() {
	dl.odActive = false
	dl.pdActive = false
	dl.isduActive = false
	dl.eventActive = false
	dl.commandActive = false
	dl.pdOutValid = false
	dl.mh.deactivate()
	dl.isdu.deactivate()
	dl.events.deactivate()
}

// odInd routes an on-request data access to the channel handlers
func (dl *DL) odInd(dir frame.RWDirection, channel frame.Channel, address uint8, data []byte) {
	switch channel {
	case frame.ChannelPage:
		dl.pageInd(dir, address, data)
	case frame.ChannelISDU:
		if dl.isduActive {
			dl.isdu.odInd(dir, address, dl.cfg.odLengthFor(dl.mh.deviceMode), data)
		} else if dir == frame.DirRead {
			dl.respond(frame.ISDUNoServiceRsp())
		} else {
			dl.respond(nil)
		}
	case frame.ChannelDiagnosis:
		dl.events.odInd(dir, address, dl.cfg.odLengthFor(dl.mh.deviceMode), data)
	default:
		// Process channel carries no on-request data for this device
		if dir == frame.DirRead {
			dl.respond(make([]byte, dl.cfg.odLengthFor(dl.mh.deviceMode)))
		} else {
			dl.respond(nil)
		}
	}

	// Input process data rides on every OPERATE frame
	if dl.mh.deviceMode == deviceOperate {
		data, valid := dl.al.PDInputReq()
		status := frame.PDValid
		if !valid {
			status = frame.PDInvalid
		}
		dl.mh.setPDStatus(status)
		if err := dl.mh.pdResponse(data); err != nil {
			dl.logger.Error("pd response failed", "err", err)
		}
	}
}

// pageInd serves the direct parameter page channel
func (dl *DL) pageInd(dir frame.RWDirection, address uint8, data []byte) {
	if dir == frame.DirRead {
		value, err := dl.store.DirectRead(address)
		if err != nil {
			value = 0
		}
		dl.sm.DLReadInd(address, value)
		dl.respond([]byte{value})
		return
	}
	if len(data) == 0 {
		dl.respond(nil)
		return
	}
	value := data[0]
	switch {
	case address == param.AddrMasterCommand && dl.commandActive:
		dl.masterCommand(value)
	case address == param.AddrMasterCycleTime:
		if dl.store.DirectWrite(address, value) == nil {
			dl.SetMasterCycleTime(value)
		}
	default:
		if err := dl.store.DirectWrite(address, value); err != nil {
			dl.logger.Debug("page write rejected", "address", address, "err", err)
		}
	}
	dl.sm.DLWriteInd(address, value)
	dl.respond(nil)
}

// masterCommand dispatches a MasterCommand parameter write
func (dl *DL) masterCommand(value byte) {
	switch value {
	case frame.MasterCmdFallback:
		_ = dl.mode.processEvent(evMCFallback)
	case frame.MasterCmdDeviceStartup:
		_ = dl.mode.processEvent(evMCStartup)
	case frame.MasterCmdDevicePreoperate:
		_ = dl.mode.processEvent(evMCPreoperate)
	case frame.MasterCmdDeviceOperate:
		_ = dl.mode.processEvent(evMCOperate)
	case frame.MasterCmdPDOutputOperate:
		dl.pdOutValid = true
	case frame.MasterCmdMasterIdent, frame.MasterCmdDeviceIdent:
		// Observed by system management through DLWriteInd
	default:
		dl.logger.Debug("unknown master command", "value", value)
	}
}

func (dl *DL) respond(data []byte) {
	if err := dl.mh.odResponse(data); err != nil {
		dl.logger.Error("od response failed", "err", err)
	}
}
