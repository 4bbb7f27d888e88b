// Package serial implements the transceiver on a real UART port.
// IO-Link uses 8 data bits, even parity and one stop bit at one of the
// three fixed rates.
package serial

import (
	"errors"
	"io"
	"sync"
	"time"

	goserial "github.com/hootrhino/goserial"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/phy"
)

func init() {
	phy.RegisterDriver("serial", NewSerialTransceiver)
}

const readTimeout = 50 * time.Millisecond

// Transceiver drives one UART port
type Transceiver struct {
	mu        sync.Mutex
	channel   string
	rate      iolink.TransmissionRate
	port      io.ReadWriteCloser
	listener  iolink.OctetListener
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
}

func NewSerialTransceiver(channel string, rate iolink.TransmissionRate) (iolink.Transceiver, error) {
	if rate.Baud() == 0 {
		return nil, iolink.ErrIllegalArgument
	}
	return &Transceiver{channel: channel, rate: rate}, nil
}

// Connect opens the UART port with IO-Link framing
func (t *Transceiver) Connect(...any) error {
	port, err := goserial.Open(&goserial.Config{
		Address:  t.channel,
		BaudRate: t.rate.Baud(),
		DataBits: 8,
		StopBits: 1,
		Parity:   "E",
		Timeout:  readTimeout,
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.port = port
	t.mu.Unlock()
	return nil
}

func (t *Transceiver) Disconnect() error {
	t.stopReceiver()
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()
	if port != nil {
		return port.Close()
	}
	return nil
}

// SetMode starts or stops reception. SIO modes are not driven by this
// transceiver, the port simply stays silent.
func (t *Transceiver) SetMode(mode iolink.PortMode) error {
	switch mode {
	case iolink.PortCom1, iolink.PortCom2, iolink.PortCom3:
		return t.startReceiver()
	default:
		t.stopReceiver()
		return nil
	}
}

func (t *Transceiver) stopReceiver() {
	t.mu.Lock()
	running := t.isRunning
	t.isRunning = false
	if running {
		close(t.stopChan)
	}
	t.mu.Unlock()
	if running {
		t.wg.Wait()
	}
}

func (t *Transceiver) startReceiver() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return errors.New("error : port not connected, abort receive")
	}
	if t.isRunning {
		return nil
	}
	t.stopChan = make(chan struct{})
	t.isRunning = true
	t.wg.Add(1)
	go t.receiveLoop()
	return nil
}

// receiveLoop delivers received octets to the subscribed listener
func (t *Transceiver) receiveLoop() {
	defer t.wg.Done()
	buffer := make([]byte, 16)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}
		t.mu.Lock()
		port, listener := t.port, t.listener
		t.mu.Unlock()
		if port == nil {
			return
		}
		n, err := port.Read(buffer)
		if err != nil || n == 0 {
			// Timeouts keep the loop responsive to stop requests
			continue
		}
		if listener == nil {
			continue
		}
		for _, octet := range buffer[:n] {
			listener.Handle(octet)
		}
	}
}

func (t *Transceiver) Send(data []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return errors.New("error : no open port, abort send")
	}
	_, err := port.Write(data)
	return err
}

func (t *Transceiver) Subscribe(listener iolink.OctetListener) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
	return nil
}
