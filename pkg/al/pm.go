package al

import (
	"log/slog"

	iolink "github.com/Raghava-Ch/goiolink"
)

// States of the parameter manager
type pmState uint8

const (
	statePmIdle          pmState = 0
	statePmDownload      pmState = 1
	statePmUpload        pmState = 2
	statePmValidityCheck pmState = 3
)

var pmStateMap = map[pmState]string{
	statePmIdle:          "IDLE",
	statePmDownload:      "DOWNLOAD",
	statePmUpload:        "UPLOAD",
	statePmValidityCheck: "VALIDITYCHECK",
}

type pmEvent uint8

const (
	pmEvWrite pmEvent = iota
	pmEvLocalEvent
	pmEvDownloadStart
	pmEvDownloadEnd
	pmEvDownloadStore
	pmEvUploadStart
	pmEvUploadEnd
	pmEvBreak
	pmEvReset
	pmEvModeChange
)

var pmEventMap = map[pmEvent]string{
	pmEvWrite:         "WRITE",
	pmEvLocalEvent:    "LOCAL-EVENT",
	pmEvDownloadStart: "DOWNLOAD-START",
	pmEvDownloadEnd:   "DOWNLOAD-END",
	pmEvDownloadStore: "DOWNLOAD-STORE",
	pmEvUploadStart:   "UPLOAD-START",
	pmEvUploadEnd:     "UPLOAD-END",
	pmEvBreak:         "BREAK",
	pmEvReset:         "RESET",
	pmEvModeChange:    "MODE-CHANGE",
}

type pmTransition uint8

const (
	pmTn            pmTransition = iota
	pmTCheck                     // enter validity check
	pmTDownload                  // enter or restart download, lock
	pmTUpload                    // enter or restart upload, lock
	pmTEndUpload                 // leave upload, unlock
	pmTAbort                     // break or mode change, discard and unlock
	pmTReset                     // system reset, discard and unlock
)

// paramManager governs the bulk parameterization state of the device :
// locking during block transfers and the validity check gating every
// write before it becomes effective.
type paramManager struct {
	logger *slog.Logger
	al     *AL

	state   pmState
	pending pmTransition

	locked       bool
	storeRequest bool
	// Validity resolution owes the master an ISDU acknowledgment
	ackPending bool
}

func newParamManager(al *AL, logger *slog.Logger) *paramManager {
	return &paramManager{
		logger: logger.With("service", "[AL-PM]"),
		al:     al,
		state:  statePmIdle,
	}
}

// processEvent selects the transition for (state, event).
// Side effects run later in poll.
func (pm *paramManager) processEvent(event pmEvent) error {
	var transition pmTransition
	var newState pmState
	switch {
	case pm.state == statePmIdle && (event == pmEvWrite || event == pmEvLocalEvent):
		transition, newState = pmTCheck, statePmValidityCheck
	case pm.state == statePmIdle && event == pmEvDownloadStart:
		transition, newState = pmTDownload, statePmDownload
	case pm.state == statePmIdle && event == pmEvUploadStart:
		transition, newState = pmTUpload, statePmUpload
	case pm.state == statePmIdle &&
		(event == pmEvDownloadEnd || event == pmEvDownloadStore || event == pmEvUploadEnd):
		// Bulk end without a matching start
		if pm.al.blockParam {
			return iolink.ErrFuncTempUnavail
		}
		return iolink.ErrFuncNotAvailable
	case pm.state == statePmDownload && event == pmEvDownloadStart:
		transition, newState = pmTDownload, statePmDownload
	case pm.state == statePmDownload && event == pmEvDownloadEnd:
		transition, newState = pmTCheck, statePmValidityCheck
	case pm.state == statePmDownload && event == pmEvDownloadStore:
		pm.storeRequest = true
		transition, newState = pmTCheck, statePmValidityCheck
	case pm.state == statePmDownload && event == pmEvUploadStart:
		transition, newState = pmTUpload, statePmUpload
	case pm.state == statePmUpload && event == pmEvUploadStart:
		transition, newState = pmTUpload, statePmUpload
	case pm.state == statePmUpload && event == pmEvUploadEnd:
		transition, newState = pmTEndUpload, statePmIdle
	case pm.state == statePmUpload && event == pmEvDownloadStart:
		transition, newState = pmTDownload, statePmDownload
	case (pm.state == statePmDownload || pm.state == statePmUpload) && event == pmEvBreak:
		transition, newState = pmTAbort, statePmIdle
	case (pm.state == statePmDownload || pm.state == statePmUpload) && event == pmEvModeChange:
		transition, newState = pmTAbort, statePmIdle
	case event == pmEvReset:
		// Reset is the universal recovery path, accepted in any state
		transition, newState = pmTReset, statePmIdle
	case pm.state == statePmIdle && (event == pmEvBreak || event == pmEvModeChange):
		return nil
	default:
		pm.logger.Debug("invalid event",
			"state", pmStateMap[pm.state],
			"event", pmEventMap[event],
		)
		return iolink.ErrInvalidEvent
	}
	pm.logger.Debug("state change",
		"from", pmStateMap[pm.state],
		"to", pmStateMap[newState],
		"event", pmEventMap[event],
	)
	pm.pending = transition
	pm.state = newState
	return nil
}

// poll executes the pending transition, then resolves a validity check
func (pm *paramManager) poll() {
	transition := pm.pending
	pm.pending = pmTn
	switch transition {
	case pmTn:
	case pmTCheck:
	case pmTDownload, pmTUpload:
		// A restart discards any half written buffer
		pm.al.store.DiscardStaged()
		pm.locked = true
	case pmTEndUpload:
		pm.locked = false
	case pmTAbort, pmTReset:
		pm.al.store.DiscardStaged()
		pm.locked = false
		pm.storeRequest = false
		if pm.ackPending {
			pm.ackPending = false
			pm.al.isduWriteDone(nil)
		}
	}

	if pm.state == statePmValidityCheck {
		pm.resolveValidity()
	}
}

// resolveValidity decides the outcome of a finished write set
func (pm *paramManager) resolveValidity() {
	err := pm.al.validate()
	if err == nil {
		err = pm.al.store.CommitStaged()
	} else {
		pm.al.store.DiscardStaged()
	}
	if err != nil {
		pm.logger.Warn("parameter set rejected", "err", err)
		pm.storeRequest = false
		pm.finish(iolink.ErrParamSetInvalid)
		return
	}
	if pm.storeRequest {
		pm.storeRequest = false
		pm.al.dsUploadRequest()
	}
	pm.finish(nil)
}

// finish leaves the validity check and acknowledges the master
func (pm *paramManager) finish(result error) {
	pm.state = statePmIdle
	pm.locked = false
	if pm.ackPending {
		pm.ackPending = false
		pm.al.isduWriteDone(result)
	}
}

// downloading reports whether writes are collected into the staged set
func (pm *paramManager) downloading() bool {
	return pm.state == statePmDownload
}
