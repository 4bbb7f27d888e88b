package iolink

import "time"

// Transmission rates defined for the serial wire, COM1 to COM3
type TransmissionRate uint8

const (
	RateCom1 TransmissionRate = 1 // 4800 baud
	RateCom2 TransmissionRate = 2 // 38400 baud
	RateCom3 TransmissionRate = 3 // 230400 baud
)

var rateMap = map[TransmissionRate]string{
	RateCom1: "COM1",
	RateCom2: "COM2",
	RateCom3: "COM3",
}

func (r TransmissionRate) String() string {
	s, ok := rateMap[r]
	if !ok {
		return "UNKNOWN"
	}
	return s
}

// Baud returns the baudrate in bit/s for a given rate
func (r TransmissionRate) Baud() int {
	switch r {
	case RateCom1:
		return 4800
	case RateCom2:
		return 38400
	case RateCom3:
		return 230400
	default:
		return 0
	}
}

// BitTime returns the duration of a single bit on the wire (TBIT)
func (r TransmissionRate) BitTime() time.Duration {
	switch r {
	case RateCom1:
		return 20833 * time.Microsecond
	case RateCom2:
		return 2604 * time.Microsecond
	case RateCom3:
		return 434 * time.Microsecond
	default:
		return 0
	}
}

// Operating mode requested from the physical layer.
// A port is either inactive, doing digital IO (SIO), or running
// serial communication at one of the three rates.
type PortMode uint8

const (
	PortInactive PortMode = 0
	PortDI       PortMode = 1
	PortDO       PortMode = 2
	PortCom1     PortMode = 3
	PortCom2     PortMode = 4
	PortCom3     PortMode = 5
)

var portModeMap = map[PortMode]string{
	PortInactive: "INACTIVE",
	PortDI:       "DI",
	PortDO:       "DO",
	PortCom1:     "COM1",
	PortCom2:     "COM2",
	PortCom3:     "COM3",
}

func (m PortMode) String() string {
	s, ok := portModeMap[m]
	if !ok {
		return "UNKNOWN"
	}
	return s
}

// ComPortMode returns the port mode matching a transmission rate
func ComPortMode(rate TransmissionRate) PortMode {
	switch rate {
	case RateCom1:
		return PortCom1
	case RateCom2:
		return PortCom2
	case RateCom3:
		return PortCom3
	default:
		return PortInactive
	}
}

// Interface for handling a received UART octet
type OctetListener interface {
	Handle(octet byte)
}

// A physical layer transceiver interface.
// Implementations live in pkg/phy : serial (real UART) and virtual (testing)
type Transceiver interface {
	Connect(...any) error                   // Connect to the physical medium
	Disconnect() error                      // Disconnect from the physical medium
	SetMode(mode PortMode) error            // Switch between SIO and COMx operation
	Send(data []byte) error                 // Send octets on the wire
	Subscribe(callback OctetListener) error // Subscribe to all received octets
}
