// Package phy holds the transceiver driver registry.
// Concrete drivers live in sub packages and register themselves inside
// an init() function.
package phy

import (
	iolink "github.com/Raghava-Ch/goiolink"
)

type NewTransceiverFunc func(channel string, rate iolink.TransmissionRate) (iolink.Transceiver, error)

var AvailableDrivers = make(map[string]NewTransceiverFunc)
var ImplementedDrivers = []string{
	"serial",
	"virtual",
}

// RegisterDriver adds a new transceiver driver type.
// This should be called inside an init() function of the driver package.
func RegisterDriver(driverType string, newTransceiver NewTransceiverFunc) {
	AvailableDrivers[driverType] = newTransceiver
}

// NewTransceiver creates a transceiver of a registered driver type
func NewTransceiver(driverType string, channel string, rate iolink.TransmissionRate) (iolink.Transceiver, error) {
	newTransceiver, ok := AvailableDrivers[driverType]
	if !ok {
		return nil, iolink.ErrUnsupportedDriver
	}
	return newTransceiver(channel, rate)
}
