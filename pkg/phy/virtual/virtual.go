// Package virtual implements an in-memory transceiver primarily used
// for testing. The test takes the master role : it injects master
// frames and inspects the captured device replies.
package virtual

import (
	"sync"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/phy"
)

func init() {
	phy.RegisterDriver("virtual", NewVirtualTransceiver)
}

type Transceiver struct {
	mu       sync.Mutex
	channel  string
	mode     iolink.PortMode
	listener iolink.OctetListener
	replies  [][]byte
}

func NewVirtualTransceiver(channel string, rate iolink.TransmissionRate) (iolink.Transceiver, error) {
	return &Transceiver{channel: channel}, nil
}

func (t *Transceiver) Connect(...any) error {
	return nil
}

func (t *Transceiver) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = nil
	return nil
}

func (t *Transceiver) SetMode(mode iolink.PortMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	return nil
}

// Send captures a device reply for inspection by the master side
func (t *Transceiver) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	reply := make([]byte, len(data))
	copy(reply, data)
	t.replies = append(t.replies, reply)
	return nil
}

func (t *Transceiver) Subscribe(listener iolink.OctetListener) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
	return nil
}

// Master side helpers

// InjectFrame delivers master frame octets to the subscribed device
func (t *Transceiver) InjectFrame(data []byte) {
	t.mu.Lock()
	listener := t.listener
	t.mu.Unlock()
	if listener == nil {
		return
	}
	for _, octet := range data {
		listener.Handle(octet)
	}
}

// Replies returns and clears the captured device replies
func (t *Transceiver) Replies() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	replies := t.replies
	t.replies = nil
	return replies
}

// LastReply returns the most recent device reply without clearing
func (t *Transceiver) LastReply() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.replies) == 0 {
		return nil
	}
	return t.replies[len(t.replies)-1]
}

// Mode returns the port mode requested by the device
func (t *Transceiver) Mode() iolink.PortMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}
