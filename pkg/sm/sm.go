// Package sm implements system management : the top level phase
// tracker of the device. It follows the DL mode indications, runs the
// identification sequence with the master and owns the communication
// and identification parameters.
package sm

import (
	"log/slog"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/dl"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
	"github.com/Raghava-Ch/goiolink/pkg/param"
)

// DeviceMode reported to the application layer
type DeviceMode uint8

const (
	DeviceModeIdle         DeviceMode = 0
	DeviceModeSIO          DeviceMode = 1
	DeviceModeEstablishCom DeviceMode = 2
	DeviceModeCom1         DeviceMode = 3
	DeviceModeCom2         DeviceMode = 4
	DeviceModeCom3         DeviceMode = 5
	DeviceModeStartup      DeviceMode = 6
	DeviceModePreoperate   DeviceMode = 7
	DeviceModeOperate      DeviceMode = 8
)

var deviceModeMap = map[DeviceMode]string{
	DeviceModeIdle:         "IDLE",
	DeviceModeSIO:          "SIO",
	DeviceModeEstablishCom: "ESTABCOM",
	DeviceModeCom1:         "COM1",
	DeviceModeCom2:         "COM2",
	DeviceModeCom3:         "COM3",
	DeviceModeStartup:      "STARTUP",
	DeviceModePreoperate:   "PREOPERATE",
	DeviceModeOperate:      "OPERATE",
}

func (m DeviceMode) String() string {
	s, ok := deviceModeMap[m]
	if !ok {
		return "UNKNOWN"
	}
	return s
}

func comDeviceMode(rate iolink.TransmissionRate) DeviceMode {
	switch rate {
	case iolink.RateCom1:
		return DeviceModeCom1
	case iolink.RateCom2:
		return DeviceModeCom2
	case iolink.RateCom3:
		return DeviceModeCom3
	default:
		return DeviceModeIdle
	}
}

// ComParameters are the communication parameters owned by system
// management, published through direct parameter page 1
type ComParameters struct {
	SIOMode             iolink.PortMode
	Rate                iolink.TransmissionRate
	MinCycleTime        uint8
	MSequenceCapability uint8
	RevisionID          uint8
	ProcessDataIn       uint8
	ProcessDataOut      uint8
}

// Identification of the device, published through direct parameter
// page 1 and the standard indices
type Identification struct {
	VendorID   uint16
	DeviceID   uint32 // 24 bit
	FunctionID uint16
}

// ALBridge receives the system management indications consumed by the
// application layer
type ALBridge interface {
	DeviceModeInd(mode DeviceMode)
	// ReconfigInd reports a complete set of staged identification
	// octets written by the master during the identity check
	ReconfigInd(revisionID uint8, deviceID uint32)
}

type smState uint8

const (
	stateSmIdle         smState = 0
	stateSmSIO          smState = 1
	stateSmComEstablish smState = 2
	stateSmComStartup   smState = 3
	stateSmIdentStartup smState = 4
	stateSmIdentCheck   smState = 5
	stateSmCompStartup  smState = 6
	stateSmPreoperate   smState = 7
	stateSmOperate      smState = 8
)

var smStateMap = map[smState]string{
	stateSmIdle:         "IDLE",
	stateSmSIO:          "SIO",
	stateSmComEstablish: "COMESTABLISH",
	stateSmComStartup:   "COMSTARTUP",
	stateSmIdentStartup: "IDENTSTARTUP",
	stateSmIdentCheck:   "IDENTCHECK",
	stateSmCompStartup:  "COMPSTARTUP",
	stateSmPreoperate:   "PREOPERATE",
	stateSmOperate:      "OPERATE",
}

type smEvent uint8

const (
	evSetSIO smEvent = iota
	evDLEstablishCom
	evDLCom
	evDLInactive
	evDLStartup
	evDLPreoperate
	evDLOperate
	evMasterIdent
	evDeviceIdent
	evMinCycleTimeRead
	evRateChanged
)

var smEventMap = map[smEvent]string{
	evSetSIO:           "SET-SIO",
	evDLEstablishCom:   "DL-ESTABCOM",
	evDLCom:            "DL-COM",
	evDLInactive:       "DL-INACTIVE",
	evDLStartup:        "DL-STARTUP",
	evDLPreoperate:     "DL-PREOPERATE",
	evDLOperate:        "DL-OPERATE",
	evMasterIdent:      "MASTERIDENT",
	evDeviceIdent:      "DEVICEIDENT",
	evMinCycleTimeRead: "MINCYCLETIME-READ",
	evRateChanged:      "RATE-CHANGED",
}

type smTransition uint8

const (
	smTn smTransition = iota
	smT1
	smT2
	smT3
	smT4
	smT5
	smT6
	smT7
	smT8
	smT9
	smT10
	smT11
	smT12
	smT13
	smT14
)

// SM is the system management instance of one device
type SM struct {
	logger      *slog.Logger
	store       *param.Store
	transceiver iolink.Transceiver
	al          ALBridge

	state   smState
	pending smTransition
	rate    iolink.TransmissionRate

	com   ComParameters
	ident Identification

	// Identification octets staged by the master during IdentCheck
	staged map[uint8]byte
}

func NewSM(
	com ComParameters,
	ident Identification,
	store *param.Store,
	transceiver iolink.Transceiver,
	al ALBridge,
	logger *slog.Logger,
) (*SM, error) {
	if store == nil || transceiver == nil || al == nil || logger == nil {
		return nil, iolink.ErrIllegalArgument
	}
	sm := &SM{
		logger:      logger.With("service", "[SM]"),
		store:       store,
		transceiver: transceiver,
		al:          al,
		state:       stateSmIdle,
		pending:     smTn,
		com:         com,
		ident:       ident,
		staged:      make(map[uint8]byte),
	}
	if err := sm.publishCom(); err != nil {
		return nil, err
	}
	if err := sm.publishIdent(); err != nil {
		return nil, err
	}
	return sm, nil
}

// State returns the device mode matching the current state
func (sm *SM) State() DeviceMode {
	switch sm.state {
	case stateSmSIO:
		return DeviceModeSIO
	case stateSmComEstablish:
		return DeviceModeEstablishCom
	case stateSmComStartup, stateSmIdentStartup, stateSmIdentCheck, stateSmCompStartup:
		return DeviceModeStartup
	case stateSmPreoperate:
		return DeviceModePreoperate
	case stateSmOperate:
		return DeviceModeOperate
	default:
		return DeviceModeIdle
	}
}

// publishCom mirrors the communication parameters into the direct
// parameter page
func (sm *SM) publishCom() error {
	page := map[uint8]byte{
		param.AddrMinCycleTime:        sm.com.MinCycleTime,
		param.AddrMSequenceCapability: sm.com.MSequenceCapability,
		param.AddrRevisionID:          sm.com.RevisionID,
		param.AddrProcessDataIn:       sm.com.ProcessDataIn,
		param.AddrProcessDataOut:      sm.com.ProcessDataOut,
	}
	for address, value := range page {
		if err := sm.store.LocalWrite(param.IndexDirectPage1, address, []byte{value}); err != nil {
			return err
		}
	}
	return nil
}

// publishIdent mirrors the identification into the direct parameter page
func (sm *SM) publishIdent() error {
	page := map[uint8]byte{
		param.AddrVendorID1:   uint8(sm.ident.VendorID >> 8),
		param.AddrVendorID2:   uint8(sm.ident.VendorID),
		param.AddrDeviceID1:   uint8(sm.ident.DeviceID >> 16),
		param.AddrDeviceID2:   uint8(sm.ident.DeviceID >> 8),
		param.AddrDeviceID3:   uint8(sm.ident.DeviceID),
		param.AddrFunctionID1: uint8(sm.ident.FunctionID >> 8),
		param.AddrFunctionID2: uint8(sm.ident.FunctionID),
	}
	for address, value := range page {
		if err := sm.store.LocalWrite(param.IndexDirectPage1, address, []byte{value}); err != nil {
			return err
		}
	}
	return nil
}

// processEvent selects the transition for (state, event).
// Side effects run later in Poll.
func (sm *SM) processEvent(event smEvent) error {
	var transition smTransition
	var newState smState
	switch {
	case sm.state == stateSmIdle && event == evSetSIO:
		transition, newState = smT1, stateSmSIO
	case sm.state == stateSmSIO && event == evDLEstablishCom:
		transition, newState = smT2, stateSmComEstablish
	case sm.state != stateSmIdle && event == evDLInactive:
		transition, newState = smT3, stateSmIdle
	case sm.state == stateSmComEstablish && event == evDLCom:
		transition, newState = smT4, stateSmComStartup
	case sm.state == stateSmComStartup && event == evMasterIdent:
		transition, newState = smT5, stateSmIdentStartup
	case sm.state == stateSmIdentStartup && event == evDeviceIdent:
		transition, newState = smT6, stateSmIdentCheck
	case sm.state == stateSmIdentCheck && event == evMinCycleTimeRead:
		transition, newState = smT7, stateSmCompStartup
	case sm.state == stateSmCompStartup && event == evDLPreoperate:
		transition, newState = smT8, stateSmPreoperate
	case sm.state == stateSmPreoperate && event == evDLOperate:
		transition, newState = smT9, stateSmOperate
	case sm.startupPhase() && event == evDLPreoperate:
		transition, newState = smT10, stateSmPreoperate
	case (sm.startupPhase() || sm.state == stateSmCompStartup) && event == evDLOperate:
		transition, newState = smT11, stateSmOperate
	case sm.state == stateSmPreoperate && event == evDLStartup:
		transition, newState = smT12, stateSmComStartup
	case sm.state == stateSmOperate && event == evDLStartup:
		transition, newState = smT13, stateSmComStartup
	case sm.state == stateSmIdentCheck && event == evRateChanged:
		transition, newState = smT14, stateSmComEstablish
	default:
		sm.logger.Debug("invalid event",
			"state", smStateMap[sm.state],
			"event", smEventMap[event],
		)
		return iolink.ErrInvalidEvent
	}
	sm.logger.Debug("state change",
		"from", smStateMap[sm.state],
		"to", smStateMap[newState],
		"event", smEventMap[event],
	)
	sm.pending = transition
	sm.state = newState
	return nil
}

func (sm *SM) startupPhase() bool {
	return sm.state == stateSmComStartup ||
		sm.state == stateSmIdentStartup ||
		sm.state == stateSmIdentCheck
}

// Poll executes the pending transition and the identity check staging
func (sm *SM) Poll() {
	transition := sm.pending
	sm.pending = smTn
	switch transition {
	case smTn:
	case smT1:
		sm.setPortMode(sm.com.SIOMode)
		sm.modeInd(DeviceModeSIO)
	case smT2, smT14:
		sm.setPortMode(iolink.ComPortMode(sm.com.Rate))
		sm.modeInd(DeviceModeEstablishCom)
	case smT3:
		sm.setPortMode(iolink.PortInactive)
		clear(sm.staged)
		sm.modeInd(DeviceModeIdle)
	case smT4:
		sm.modeInd(comDeviceMode(sm.rate))
	case smT5, smT6:
		// Identification handshake, no mode change visible to the app
	case smT7, smT12, smT13:
		sm.modeInd(DeviceModeStartup)
	case smT8, smT10:
		sm.modeInd(DeviceModePreoperate)
	case smT9, smT11:
		sm.modeInd(DeviceModeOperate)
	}

	if sm.state == stateSmIdentCheck && len(sm.staged) == 4 {
		revision := sm.staged[param.AddrRevisionID]
		deviceID := uint32(sm.staged[param.AddrDeviceID1])<<16 |
			uint32(sm.staged[param.AddrDeviceID2])<<8 |
			uint32(sm.staged[param.AddrDeviceID3])
		clear(sm.staged)
		sm.logger.Info("reconfiguration staged", "revision", revision, "deviceid", deviceID)
		sm.al.ReconfigInd(revision, deviceID)
	}
}

func (sm *SM) setPortMode(mode iolink.PortMode) {
	if err := sm.transceiver.SetMode(mode); err != nil {
		sm.logger.Error("port mode change failed", "mode", mode.String(), "err", err)
	}
}

func (sm *SM) modeInd(mode DeviceMode) {
	sm.logger.Info("device mode", "mode", mode.String())
	sm.al.DeviceModeInd(mode)
}

// DLModeInd implements [dl.SMBridge]
func (sm *SM) DLModeInd(mode dl.Mode, rate iolink.TransmissionRate) {
	var event smEvent
	switch mode {
	case dl.ModeEstablishCom:
		event = evDLEstablishCom
	case dl.ModeCom1, dl.ModeCom2, dl.ModeCom3:
		sm.rate = rate
		event = evDLCom
	case dl.ModeStartup:
		event = evDLStartup
	case dl.ModePreoperate:
		event = evDLPreoperate
	case dl.ModeOperate:
		event = evDLOperate
	case dl.ModeInactive:
		event = evDLInactive
	default:
		return
	}
	_ = sm.processEvent(event)
}

// DLWriteInd implements [dl.SMBridge], observing the identification
// handshake and the staged reconfiguration octets
func (sm *SM) DLWriteInd(address uint8, value byte) {
	switch address {
	case param.AddrMasterCommand:
		switch value {
		case frame.MasterCmdMasterIdent:
			_ = sm.processEvent(evMasterIdent)
		case frame.MasterCmdDeviceIdent:
			_ = sm.processEvent(evDeviceIdent)
		}
	case param.AddrRevisionID, param.AddrDeviceID1, param.AddrDeviceID2, param.AddrDeviceID3:
		sm.staged[address] = value
	}
}

// DLReadInd implements [dl.SMBridge]. Reading MinCycleTime completes
// the identity check.
func (sm *SM) DLReadInd(address uint8, value byte) {
	if address == param.AddrMinCycleTime {
		_ = sm.processEvent(evMinCycleTimeRead)
	}
}

// SetDeviceMode requests the switch from Idle to the configured SIO mode
func (sm *SM) SetDeviceMode() error {
	return sm.processEvent(evSetSIO)
}

// RateChanged requests a transmission rate change during the identity
// check, restarting communication establishment
func (sm *SM) RateChanged(rate iolink.TransmissionRate) error {
	if err := sm.processEvent(evRateChanged); err != nil {
		return err
	}
	sm.com.Rate = rate
	return nil
}

// SetDeviceCom replaces the communication parameters.
// Allowed before communication is running only.
func (sm *SM) SetDeviceCom(com ComParameters) error {
	if sm.state != stateSmIdle && sm.state != stateSmSIO {
		return iolink.ErrStateConflict
	}
	sm.com = com
	return sm.publishCom()
}

// GetDeviceCom returns the current communication parameters
func (sm *SM) GetDeviceCom() ComParameters {
	return sm.com
}

// SetDeviceIdent replaces the device identification.
// Allowed before communication is running only.
func (sm *SM) SetDeviceIdent(ident Identification) error {
	if sm.state != stateSmIdle && sm.state != stateSmSIO {
		return iolink.ErrStateConflict
	}
	sm.ident = ident
	return sm.publishIdent()
}

// GetDeviceIdent returns the current device identification
func (sm *SM) GetDeviceIdent() Identification {
	return sm.ident
}
