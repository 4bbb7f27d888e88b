// Package al implements the application layer of the device : the
// parameter manager gating every parameter write, the ISDU request
// resolution, process data exchange and the diagnosis event interface.
package al

import (
	"log/slog"
	"sync"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/dl"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
	"github.com/Raghava-Ch/goiolink/pkg/param"
	"github.com/Raghava-Ch/goiolink/pkg/sm"
)

// DLBridge is the data link layer surface consumed by the application
// layer, satisfied by [dl.DL]
type DLBridge interface {
	ISDUReadRsp(data []byte) error
	ISDUWriteRsp() error
	ISDUErrorRsp(dir frame.RWDirection, errType iolink.ErrorType) error
	SendEvents(events []dl.Event) error
}

// DataStorage is the persistence capability consumed by the parameter
// manager. Implementations live with the hosting application.
type DataStorage interface {
	// UploadRequestInd signals that a validated parameter set is
	// ready for upload into the master's data storage
	UploadRequestInd()
	// Command executes a data storage command written by the master
	Command(cmd uint8) error
}

// Handlers are the optional application callbacks
type Handlers struct {
	// OnSystemCommand receives device scoped and vendor specific
	// system commands (0x80.. / 0xA0..0xFF)
	OnSystemCommand func(cmd uint8) error
	// OnProcessDataOut receives every output process data update
	OnProcessDataOut func(data []byte)
	// OnDeviceMode receives device mode changes from system management
	OnDeviceMode func(mode sm.DeviceMode)
	// OnReconfig receives staged identification octets written by the
	// master during the identity check
	OnReconfig func(revisionID uint8, deviceID uint32)
}

// Config of the application layer
type Config struct {
	PDInLength  uint8
	PDOutLength uint8
	// Block parameterization support changes the error code reported
	// for unmatched bulk transfer commands
	SupportsBlockParam bool
}

// AL is the application layer instance of one device
type AL struct {
	logger   *slog.Logger
	store    *param.Store
	dl       DLBridge
	ds       DataStorage
	handlers Handlers

	pm         *paramManager
	blockParam bool
	validator  func() error

	// ISDU request handed over by the data link layer, resolved in Poll
	request *frame.ISDURequest

	mu          sync.Mutex
	pdIn        []byte
	pdInValid   bool
	pdOut       []byte
	events      []dl.Event
	dsCommand   uint8
	dsCmdStaged bool
}

func NewAL(cfg Config, store *param.Store, handlers Handlers, logger *slog.Logger) (*AL, error) {
	if store == nil || logger == nil {
		return nil, iolink.ErrIllegalArgument
	}
	al := &AL{
		logger:     logger.With("service", "[AL]"),
		store:      store,
		handlers:   handlers,
		blockParam: cfg.SupportsBlockParam,
		pdIn:       make([]byte, cfg.PDInLength),
		pdOut:      make([]byte, cfg.PDOutLength),
	}
	al.pm = newParamManager(al, logger)
	al.installExtensions()
	return al, nil
}

// AttachDL wires the data link layer used for ISDU responses and
// event signalling. Must be called before the first Poll.
func (al *AL) AttachDL(d DLBridge) {
	al.dl = d
}

// SetDataStorage installs the persistence capability
func (al *AL) SetDataStorage(ds DataStorage) {
	al.ds = ds
}

// SetValidator installs the application's parameter set validation
// hook, consulted whenever a write set completes
func (al *AL) SetValidator(validator func() error) {
	al.validator = validator
}

// installExtensions hooks the command dispatch into the store : system
// commands on the direct page and the ISDU index, data storage commands
// on the data storage object
func (al *AL) installExtensions() {
	page1 := al.store.Index(param.IndexDirectPage1)
	if page1 != nil {
		page1.AddExtension(al, nil, func(index uint16, subIndex uint8, data []byte) error {
			if subIndex == param.AddrSystemCommand && len(data) == 1 {
				return al.systemCommand(data[0])
			}
			return nil
		})
	}
	command := al.store.Index(param.IndexSystemCommand)
	if command != nil {
		command.AddExtension(al, nil, func(index uint16, subIndex uint8, data []byte) error {
			if len(data) != 1 {
				return iolink.ErrValueLenOverrun
			}
			return al.systemCommand(data[0])
		})
	}
	ds := al.store.Index(param.IndexDataStorage)
	if ds != nil {
		ds.AddExtension(al, nil, func(index uint16, subIndex uint8, data []byte) error {
			if subIndex == param.SubDsCommand && len(data) == 1 {
				al.mu.Lock()
				al.dsCommand = data[0]
				al.dsCmdStaged = true
				al.mu.Unlock()
			}
			return nil
		})
	}
}

// systemCommand dispatches one system command octet
func (al *AL) systemCommand(cmd uint8) error {
	al.logger.Debug("system command", "cmd", cmd)
	switch cmd {
	case param.CommandParamUploadStart:
		return al.pm.processEvent(pmEvUploadStart)
	case param.CommandParamUploadEnd:
		return al.pm.processEvent(pmEvUploadEnd)
	case param.CommandParamDownloadStart:
		return al.pm.processEvent(pmEvDownloadStart)
	case param.CommandParamDownloadEnd:
		return al.deferredBulkEnd(pmEvDownloadEnd)
	case param.CommandParamDownloadStore:
		return al.deferredBulkEnd(pmEvDownloadStore)
	case param.CommandParamBreak:
		return al.pm.processEvent(pmEvBreak)
	case param.CommandDeviceReset, param.CommandApplicationReset,
		param.CommandRestoreFactorySettings, param.CommandBackToBox:
		_ = al.pm.processEvent(pmEvReset)
		return al.appCommand(cmd)
	default:
		if cmd >= 0xA0 {
			return al.appCommand(cmd)
		}
		return iolink.ErrFuncNotAvailable
	}
}

// deferredBulkEnd enters the validity check, the acknowledgment is
// owed to the master once the check resolves
func (al *AL) deferredBulkEnd(event pmEvent) error {
	if err := al.pm.processEvent(event); err != nil {
		return err
	}
	if al.request != nil && al.request.Dir == frame.DirWrite {
		al.pm.ackPending = true
	}
	return nil
}

func (al *AL) appCommand(cmd uint8) error {
	if al.handlers.OnSystemCommand == nil {
		return nil
	}
	return al.handlers.OnSystemCommand(cmd)
}

// validate consults the application's validation hook
func (al *AL) validate() error {
	if al.validator == nil {
		return nil
	}
	return al.validator()
}

// dsUploadRequest pushes a validated parameter set to data storage
func (al *AL) dsUploadRequest() {
	if al.ds == nil {
		return
	}
	al.logger.Debug("data storage upload requested")
	al.ds.UploadRequestInd()
}

// Poll runs one application layer cycle : the parameter manager
// transition, the pending ISDU request and the event queue
func (al *AL) Poll() {
	al.pm.poll()
	al.resolveRequest()
	al.drainDsCommand()
	al.sendEvents()
}

// resolveRequest serves the ISDU request handed over by the data link
// layer. The data link layer answers busy until this completes.
func (al *AL) resolveRequest() {
	if al.request == nil || al.dl == nil {
		return
	}
	request := *al.request
	if request.Dir == frame.DirRead {
		al.request = nil
		al.resolveRead(request)
		return
	}
	al.resolveWrite(request)
}

func (al *AL) resolveRead(request frame.ISDURequest) {
	value, err := al.store.Read(request.Index, request.SubIndex)
	if err != nil {
		al.isduReadFail(err)
		return
	}
	if err := al.dl.ISDUReadRsp(value); err != nil {
		al.logger.Error("isdu read response failed", "err", err)
	}
}

func (al *AL) resolveWrite(request frame.ISDURequest) {
	var err error
	switch {
	case request.Index == param.IndexSystemCommand || request.Index == param.IndexDataStorage:
		err = al.store.Write(request.Index, request.SubIndex, request.Data)
	case al.pm.downloading():
		// Collected into the staged set, validated at download end
		err = al.store.StageWrite(request.Index, request.SubIndex, request.Data)
	case al.pm.locked:
		err = iolink.ErrServiceNotAvail
	default:
		// Single parameter write, effective after the validity check
		err = al.store.StageWrite(request.Index, request.SubIndex, request.Data)
		if err == nil {
			if err = al.pm.processEvent(pmEvWrite); err == nil {
				al.pm.ackPending = true
			}
		}
	}
	al.request = nil
	if al.pm.ackPending {
		// Acknowledged by the validity check resolution
		return
	}
	al.isduWriteDone(err)
}

func (al *AL) isduWriteDone(err error) {
	if al.dl == nil {
		return
	}
	if err == nil {
		if err := al.dl.ISDUWriteRsp(); err != nil {
			al.logger.Error("isdu write response failed", "err", err)
		}
		return
	}
	if err := al.dl.ISDUErrorRsp(frame.DirWrite, errorType(err)); err != nil {
		al.logger.Error("isdu error response failed", "err", err)
	}
}

func (al *AL) isduReadFail(err error) {
	errType := errorType(err)
	// Absent parameters abort the read with the dedicated code
	if errType == iolink.ErrIndexNotAvailable || errType == iolink.ErrSubindexNotAvail {
		errType = iolink.ErrReadAbort
	}
	if err := al.dl.ISDUErrorRsp(frame.DirRead, errType); err != nil {
		al.logger.Error("isdu error response failed", "err", err)
	}
}

// errorType maps an error to the wire error code pair
func errorType(err error) iolink.ErrorType {
	if errType, ok := err.(iolink.ErrorType); ok {
		return errType
	}
	return iolink.ErrUnspecific
}

// drainDsCommand forwards one staged data storage command
func (al *AL) drainDsCommand() {
	al.mu.Lock()
	staged, cmd := al.dsCmdStaged, al.dsCommand
	al.dsCmdStaged = false
	al.mu.Unlock()
	if !staged || al.ds == nil {
		return
	}
	if err := al.ds.Command(cmd); err != nil {
		al.logger.Warn("data storage command failed", "cmd", cmd, "err", err)
	}
}

// sendEvents pushes buffered diagnosis events to the data link layer
func (al *AL) sendEvents() {
	al.mu.Lock()
	pending := al.events
	al.mu.Unlock()
	if len(pending) == 0 || al.dl == nil {
		return
	}
	batch := pending
	if len(batch) > 6 {
		batch = batch[:6]
	}
	switch err := al.dl.SendEvents(batch); err {
	case nil:
		al.mu.Lock()
		al.events = al.events[len(batch):]
		al.mu.Unlock()
	case iolink.ErrNotActive:
		// No event channel in this phase, drop
		al.mu.Lock()
		al.events = nil
		al.mu.Unlock()
	default:
		// Previous readout still pending, retried next poll
	}
}

// SetEvent queues one diagnosis event for transmission
func (al *AL) SetEvent(qualifier uint8, code uint16) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.events = append(al.events, dl.Event{Qualifier: qualifier, Code: code})
}

// SetPDInput updates the input process data served every OPERATE cycle
func (al *AL) SetPDInput(data []byte, valid bool) error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if len(data) != len(al.pdIn) {
		return iolink.ErrIllegalArgument
	}
	copy(al.pdIn, data)
	al.pdInValid = valid
	return nil
}

// GetPDOutput returns the last received output process data
func (al *AL) GetPDOutput() []byte {
	al.mu.Lock()
	defer al.mu.Unlock()
	out := make([]byte, len(al.pdOut))
	copy(out, al.pdOut)
	return out
}

// ISDUTransportInd implements [dl.ALBridge]
func (al *AL) ISDUTransportInd(request frame.ISDURequest) {
	al.request = &request
}

// ISDUAbortInd implements [dl.ALBridge]
func (al *AL) ISDUAbortInd() {
	al.request = nil
	al.pm.ackPending = false
}

// PDOutputInd implements [dl.ALBridge]
func (al *AL) PDOutputInd(data []byte) {
	al.mu.Lock()
	copy(al.pdOut, data)
	al.mu.Unlock()
	if al.handlers.OnProcessDataOut != nil {
		al.handlers.OnProcessDataOut(data)
	}
}

// PDInputReq implements [dl.ALBridge]. A snapshot is returned so the
// frame under assembly never aliases a buffer SetPDInput may rewrite.
func (al *AL) PDInputReq() ([]byte, bool) {
	al.mu.Lock()
	defer al.mu.Unlock()
	data := make([]byte, len(al.pdIn))
	copy(data, al.pdIn)
	return data, al.pdInValid
}

// DeviceModeInd implements [sm.ALBridge]. Leaving the communicating
// phases aborts an open bulk transfer.
func (al *AL) DeviceModeInd(mode sm.DeviceMode) {
	if mode == sm.DeviceModeStartup || mode == sm.DeviceModeIdle {
		_ = al.pm.processEvent(pmEvModeChange)
	}
	if al.handlers.OnDeviceMode != nil {
		al.handlers.OnDeviceMode(mode)
	}
}

// ReconfigInd implements [sm.ALBridge]
func (al *AL) ReconfigInd(revisionID uint8, deviceID uint32) {
	if al.handlers.OnReconfig != nil {
		al.handlers.OnReconfig(revisionID, deviceID)
	}
}
