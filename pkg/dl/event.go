package dl

import (
	"log/slog"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
)

// An Event is one diagnosis entry signalled to the master
type Event struct {
	Qualifier uint8
	Code      uint16
}

// Event memory : one status code octet followed by up to six entries
// of three octets each
const (
	eventEntrySize  = 3
	maxEventEntries = 6
	eventMemorySize = 1 + maxEventEntries*eventEntrySize
)

type eventState uint8

const (
	stateEventInactive eventState = 0
	stateEventIdle     eventState = 1
	stateEventFrozen   eventState = 2
)

// EventHandler maintains the event memory read out by the master over
// the diagnosis channel. While the master reads, the memory is frozen
// and the event flag stays set until the readout is confirmed by a
// write to the status code octet.
type EventHandler struct {
	logger  *slog.Logger
	dl      *DL
	state   eventState
	memory  [eventMemorySize]byte
	entries int
}

func newEventHandler(dl *DL, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		logger: logger.With("service", "[DL-EVENT]"),
		dl:     dl,
		state:  stateEventInactive,
	}
}

func (eh *EventHandler) activate() {
	if eh.state != stateEventInactive {
		return
	}
	eh.clear()
	eh.state = stateEventIdle
}

func (eh *EventHandler) deactivate() {
	eh.clear()
	eh.state = stateEventInactive
}

func (eh *EventHandler) clear() {
	eh.memory = [eventMemorySize]byte{}
	eh.entries = 0
}

// Send stores events into the memory, freezes it and raises the event
// flag so the master starts the readout
func (eh *EventHandler) Send(events []Event) error {
	if eh.state == stateEventInactive {
		return iolink.ErrNotActive
	}
	if eh.state == stateEventFrozen {
		// Previous readout still pending
		return iolink.ErrTimeout
	}
	for _, event := range events {
		if eh.entries == maxEventEntries {
			return iolink.ErrBufferSize
		}
		offset := 1 + eh.entries*eventEntrySize
		eh.memory[offset] = event.Qualifier
		eh.memory[offset+1] = uint8(event.Code >> 8)
		eh.memory[offset+2] = uint8(event.Code)
		eh.memory[0] |= 1 << eh.entries // status code slot bit
		eh.entries++
	}
	eh.memory[0] |= 0x80 // event details available
	eh.state = stateEventFrozen
	eh.dl.mh.setEventFlag(true)
	eh.logger.Debug("events pending", "count", eh.entries)
	return nil
}

// odInd serves diagnosis channel accesses to the event memory
func (eh *EventHandler) odInd(dir frame.RWDirection, address uint8, length uint8, data []byte) {
	if eh.state == stateEventInactive {
		eh.respond(make([]byte, length))
		return
	}
	if dir == frame.DirRead {
		out := make([]byte, length)
		for i := range out {
			offset := int(address) + i
			if offset < eventMemorySize {
				out[i] = eh.memory[offset]
			}
		}
		eh.respond(out)
		return
	}
	// Write access to the status code confirms the readout
	if address == 0 {
		eh.clear()
		eh.state = stateEventIdle
		eh.dl.mh.setEventFlag(false)
	}
	eh.ackWrite()
}

func (eh *EventHandler) respond(data []byte) {
	if err := eh.dl.mh.odResponse(data); err != nil {
		eh.logger.Error("od response failed", "err", err)
	}
}

func (eh *EventHandler) ackWrite() {
	if err := eh.dl.mh.odResponse(nil); err != nil {
		eh.logger.Error("od response failed", "err", err)
	}
}
