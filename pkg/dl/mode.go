package dl

import (
	"log/slog"
	"time"

	iolink "github.com/Raghava-Ch/goiolink"
)

// Mode reported to system management through DL_Mode.ind
type Mode uint8

const (
	ModeInactive     Mode = 0
	ModeEstablishCom Mode = 1
	ModeCom1         Mode = 2
	ModeCom2         Mode = 3
	ModeCom3         Mode = 4
	ModeStartup      Mode = 5
	ModePreoperate   Mode = 6
	ModeOperate      Mode = 7
)

var modeMap = map[Mode]string{
	ModeInactive:     "INACTIVE",
	ModeEstablishCom: "ESTABCOM",
	ModeCom1:         "COM1",
	ModeCom2:         "COM2",
	ModeCom3:         "COM3",
	ModeStartup:      "STARTUP",
	ModePreoperate:   "PREOPERATE",
	ModeOperate:      "OPERATE",
}

func (m Mode) String() string {
	s, ok := modeMap[m]
	if !ok {
		return "UNKNOWN"
	}
	return s
}

// ComMode returns the indication matching an established rate
func ComMode(rate iolink.TransmissionRate) Mode {
	switch rate {
	case iolink.RateCom1:
		return ModeCom1
	case iolink.RateCom2:
		return ModeCom2
	case iolink.RateCom3:
		return ModeCom3
	default:
		return ModeInactive
	}
}

// States of the DL-mode handler
type modeState uint8

const (
	stateModeIdle         modeState = 0
	stateModeEstablishCom modeState = 1
	stateModeStartup      modeState = 2
	stateModePreoperate   modeState = 3
	stateModeOperate      modeState = 4
)

var modeStateMap = map[modeState]string{
	stateModeIdle:         "IDLE",
	stateModeEstablishCom: "ESTABLISHCOM",
	stateModeStartup:      "STARTUP",
	stateModePreoperate:   "PREOPERATE",
	stateModeOperate:      "OPERATE",
}

type modeEvent uint8

const (
	evWakeUp modeEvent = iota
	evComEstablished
	evTDSIOExpired
	evMCStartup
	evMCPreoperate
	evMCOperate
	evMCFallback
	evIllegalMsgType
)

var modeEventMap = map[modeEvent]string{
	evWakeUp:         "WAKEUP",
	evComEstablished: "COM-ESTABLISHED",
	evTDSIOExpired:   "TDSIO-EXPIRED",
	evMCStartup:      "MC-STARTUP",
	evMCPreoperate:   "MC-PREOPERATE",
	evMCOperate:      "MC-OPERATE",
	evMCFallback:     "MC-FALLBACK",
	evIllegalMsgType: "ILLEGAL-MSGTYPE",
}

type modeTransition uint8

const (
	modeTn modeTransition = iota
	modeT1
	modeT2
	modeT3
	modeT4
	modeT5
	modeT6
	modeT7
	modeT8
	modeT9
	modeT10
	modeT11
	modeT12
)

const (
	// Time waiting for the first master frame before reverting to SIO
	defaultTDSIO = 500 * time.Millisecond
	// Delay between a fallback command and the switch to SIO
	defaultFallbackDelay = time.Millisecond
)

// ModeHandler coordinates the communication phases of the data link
// layer and reports them to system management
type ModeHandler struct {
	logger  *slog.Logger
	dl      *DL
	state   modeState
	pending modeTransition
	rate    iolink.TransmissionRate

	tdsio         time.Duration
	fallbackDelay time.Duration
	tdsioDeadline time.Time
	tdsioActive   bool
	fbDeadline    time.Time
	fbActive      bool
}

func newModeHandler(dl *DL, logger *slog.Logger) *ModeHandler {
	return &ModeHandler{
		logger:        logger.With("service", "[DL-MODE]"),
		dl:            dl,
		state:         stateModeIdle,
		pending:       modeTn,
		tdsio:         defaultTDSIO,
		fallbackDelay: defaultFallbackDelay,
	}
}

// Mode returns the indication matching the current state
func (m *ModeHandler) Mode() Mode {
	switch m.state {
	case stateModeEstablishCom:
		return ModeEstablishCom
	case stateModeStartup:
		return ModeStartup
	case stateModePreoperate:
		return ModePreoperate
	case stateModeOperate:
		return ModeOperate
	default:
		return ModeInactive
	}
}

// processEvent selects the transition for (state, event).
// Side effects run later in poll, keeping the two phases apart.
func (m *ModeHandler) processEvent(event modeEvent) error {
	var transition modeTransition
	var newState modeState
	switch {
	case m.state == stateModeIdle && event == evWakeUp:
		transition, newState = modeT1, stateModeEstablishCom
	case m.state == stateModeEstablishCom && event == evComEstablished:
		transition, newState = modeT2, stateModeStartup
	case m.state == stateModeEstablishCom && event == evTDSIOExpired:
		transition, newState = modeT10, stateModeIdle
	case m.state == stateModeStartup && event == evMCPreoperate:
		transition, newState = modeT3, stateModePreoperate
	case m.state == stateModeStartup && event == evMCOperate:
		transition, newState = modeT5, stateModeOperate
	case m.state == stateModePreoperate && event == evMCOperate:
		transition, newState = modeT4, stateModeOperate
	case m.state == stateModePreoperate && event == evMCStartup:
		transition, newState = modeT6, stateModeStartup
	case m.state == stateModePreoperate && event == evMCFallback:
		transition, newState = modeT8, stateModeIdle
	case m.state == stateModePreoperate && event == evIllegalMsgType:
		transition, newState = modeT12, stateModeStartup
	case m.state == stateModeOperate && event == evMCStartup:
		transition, newState = modeT7, stateModeStartup
	case m.state == stateModeOperate && event == evMCFallback:
		transition, newState = modeT9, stateModeIdle
	case m.state == stateModeOperate && event == evIllegalMsgType:
		transition, newState = modeT11, stateModeStartup
	default:
		m.logger.Warn("invalid event", "state", modeStateMap[m.state], "event", modeEventMap[event])
		return iolink.ErrInvalidEvent
	}
	m.logger.Debug("state change",
		"from", modeStateMap[m.state],
		"to", modeStateMap[newState],
		"event", modeEventMap[event],
	)
	m.pending = transition
	m.state = newState
	return nil
}

// poll executes the pending transition and expires timers
func (m *ModeHandler) poll(now time.Time) {
	if m.tdsioActive && now.After(m.tdsioDeadline) {
		m.tdsioActive = false
		// Ignore when no longer waiting for communication
		_ = m.processEvent(evTDSIOExpired)
	}
	if m.fbActive && now.After(m.fbDeadline) {
		m.fbActive = false
		m.dl.modeInd(ModeInactive, m.rate)
	}

	transition := m.pending
	m.pending = modeTn
	switch transition {
	case modeTn:
	case modeT1:
		// Wake-up received, listen for master frames
		m.dl.mh.activate(m.dl.cfg.Rate)
		m.tdsioDeadline = now.Add(m.tdsio)
		m.tdsioActive = true
		m.dl.modeInd(ModeEstablishCom, 0)
	case modeT2:
		m.tdsioActive = false
		m.dl.odActive = true
		m.dl.commandActive = true
		m.dl.mh.setRate(m.rate)
		m.dl.modeInd(ComMode(m.rate), m.rate)
	case modeT3:
		m.dl.isduActive = true
		m.dl.eventActive = true
		m.dl.isdu.activate()
		m.dl.events.activate()
		m.dl.mh.setDeviceMode(devicePreoperate)
		m.dl.modeInd(ModePreoperate, m.rate)
	case modeT4:
		m.dl.pdActive = true
		m.dl.mh.setDeviceMode(deviceOperate)
		m.dl.modeInd(ModeOperate, m.rate)
	case modeT5:
		m.dl.pdActive = true
		m.dl.isduActive = true
		m.dl.eventActive = true
		m.dl.isdu.activate()
		m.dl.events.activate()
		m.dl.mh.setDeviceMode(deviceOperate)
		m.dl.modeInd(ModeOperate, m.rate)
	case modeT6, modeT7:
		m.regressToStartup()
	case modeT8, modeT9:
		// Fallback, SIO after the fallback delay has elapsed
		m.dl.deactivateAll()
		m.fbDeadline = now.Add(m.fallbackDelay)
		m.fbActive = true
	case modeT10:
		// No master showed up, revert to SIO
		m.dl.deactivateAll()
		m.dl.modeInd(ModeInactive, m.rate)
	case modeT11, modeT12:
		m.regressToStartup()
	}
}

// regressToStartup returns to the STARTUP phase, stopping the services
// of the richer phases. An in-flight ISDU transfer is aborted up to
// the application layer.
func (m *ModeHandler) regressToStartup() {
	m.dl.pdActive = false
	m.dl.isduActive = false
	m.dl.eventActive = false
	m.dl.isdu.deactivate()
	m.dl.events.deactivate()
	m.dl.mh.setDeviceMode(deviceStartup)
	m.dl.modeInd(ModeStartup, m.rate)
}

// comEstablished latches the rate detected by the physical layer
func (m *ModeHandler) comEstablished(rate iolink.TransmissionRate) error {
	if err := m.processEvent(evComEstablished); err != nil {
		return err
	}
	m.rate = rate
	return nil
}
