// Package device assembles the layer stack of one IO-Link device port :
// parameter store, application layer, system management and data link
// layer wired onto a physical transceiver. All layers run inside a
// single polling loop, no layer spawns goroutines of its own.
package device

import (
	"context"
	"log/slog"
	"time"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/al"
	"github.com/Raghava-Ch/goiolink/pkg/dl"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
	"github.com/Raghava-Ch/goiolink/pkg/param"
	"github.com/Raghava-Ch/goiolink/pkg/sm"
)

// Device is one assembled IO-Link device port
type Device struct {
	logger      *slog.Logger
	cfg         Config
	transceiver iolink.Transceiver

	store *param.Store
	al    *al.AL
	sm    *sm.SM
	dl    *dl.DL
	ds    *dataStorage
}

// NewDevice assembles the device stack on the given transceiver.
// The transceiver is subscribed but not connected, call [Device.Start].
func NewDevice(
	cfg Config,
	transceiver iolink.Transceiver,
	handlers al.Handlers,
	logger *slog.Logger,
) (*Device, error) {
	if transceiver == nil || logger == nil {
		return nil, iolink.ErrIllegalArgument
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := param.NewDefaultStore(param.Identity{
		VendorID:            cfg.VendorID,
		DeviceID:            cfg.DeviceID,
		FunctionID:          cfg.FunctionID,
		RevisionID:          cfg.RevisionID,
		MinCycleTime:        cfg.MinCycleTime,
		MSequenceCapability: cfg.MSequenceCapability,
		ProcessDataIn:       pdDescriptor(cfg.PDInLength),
		ProcessDataOut:      pdDescriptor(cfg.PDOutLength),
		VendorName:          cfg.VendorName,
		ProductName:         cfg.ProductName,
	})
	if cfg.ProfilePath != "" {
		if err := param.Parse(store, cfg.ProfilePath); err != nil {
			return nil, err
		}
	}

	application, err := al.NewAL(al.Config{
		PDInLength:         cfg.PDInLength,
		PDOutLength:        cfg.PDOutLength,
		SupportsBlockParam: cfg.SupportsBlockParam,
	}, store, handlers, logger)
	if err != nil {
		return nil, err
	}

	management, err := sm.NewSM(sm.ComParameters{
		SIOMode:             cfg.SIOMode,
		Rate:                cfg.Rate,
		MinCycleTime:        cfg.MinCycleTime,
		MSequenceCapability: cfg.MSequenceCapability,
		RevisionID:          cfg.RevisionID,
		ProcessDataIn:       pdDescriptor(cfg.PDInLength),
		ProcessDataOut:      pdDescriptor(cfg.PDOutLength),
	}, sm.Identification{
		VendorID:   cfg.VendorID,
		DeviceID:   cfg.DeviceID,
		FunctionID: cfg.FunctionID,
	}, store, transceiver, application, logger)
	if err != nil {
		return nil, err
	}

	link, err := dl.NewDL(dl.Config{
		Sizes: frame.Sizes{
			ODPreoperate: cfg.ODPreoperate,
			ODOperate:    cfg.ODOperate,
			PDIn:         cfg.PDInLength,
			PDOut:        cfg.PDOutLength,
		},
		Rate:           cfg.Rate,
		PreoperateType: cfg.PreoperateType,
		OperateType:    cfg.OperateType,
	}, store, transceiver, management, application, logger)
	if err != nil {
		return nil, err
	}
	application.AttachDL(link)

	device := &Device{
		logger:      logger.With("service", "[DEVICE]"),
		cfg:         cfg,
		transceiver: transceiver,
		store:       store,
		al:          application,
		sm:          management,
		dl:          link,
	}
	if cfg.SupportsDataStorage {
		device.ds = newDataStorage(store, logger)
		application.SetDataStorage(device.ds)
	}
	if err := transceiver.Subscribe(link); err != nil {
		return nil, err
	}
	return device, nil
}

// pdDescriptor encodes a process data length into the direct page
// descriptor octet : bit 7 flags presence, bits 4..0 carry length-1
func pdDescriptor(length uint8) uint8 {
	if length == 0 {
		return 0
	}
	return 0x80 | ((length - 1) & 0x1F)
}

// Start connects the transceiver and brings the port to the configured
// SIO mode, ready for a master wake-up
func (d *Device) Start() error {
	if err := d.transceiver.Connect(); err != nil {
		return err
	}
	if err := d.sm.SetDeviceMode(); err != nil {
		return err
	}
	d.sm.Poll()
	d.logger.Info("device started", "rate", d.cfg.Rate.String())
	return nil
}

// Stop disconnects the transceiver
func (d *Device) Stop() error {
	d.logger.Info("device stopped")
	return d.transceiver.Disconnect()
}

// Poll runs one processing cycle over all layers. The application
// layer resolves requests first so the data link layer answers within
// the same cycle, system management executes its transition last.
func (d *Device) Poll(now time.Time) {
	d.al.Poll()
	d.dl.Poll(now)
	d.sm.Poll()
}

// Run polls the device until the context is cancelled
func (d *Device) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return d.Stop()
		case now := <-ticker.C:
			d.Poll(now)
		}
	}
}

// Handle implements [iolink.OctetListener], forwarding one received
// octet to the data link layer. Hosts driving their own physical layer
// feed octets here instead of subscribing a transceiver.
func (d *Device) Handle(octet byte) {
	d.dl.Handle(octet)
}

// WakeUp signals a wake-up request detected by the physical layer
func (d *Device) WakeUp() error {
	return d.dl.WakeUp()
}

// ComEstablished signals a successfully detected transmission rate
func (d *Device) ComEstablished(rate iolink.TransmissionRate) error {
	return d.dl.ComEstablished(rate)
}

// Mode returns the device mode seen by system management
func (d *Device) Mode() sm.DeviceMode {
	return d.sm.State()
}

// SetPDInput updates the input process data served in OPERATE
func (d *Device) SetPDInput(data []byte, valid bool) error {
	return d.al.SetPDInput(data, valid)
}

// GetPDOutput returns the last received output process data
func (d *Device) GetPDOutput() []byte {
	return d.al.GetPDOutput()
}

// PDOutputValid reports whether the master declared its output process
// data valid
func (d *Device) PDOutputValid() bool {
	return d.dl.PDOutputValid()
}

// SetEvent queues one diagnosis event for readout by the master
func (d *Device) SetEvent(qualifier uint8, code uint16) {
	d.al.SetEvent(qualifier, code)
}

// SetValidator installs the application's parameter set validation hook
func (d *Device) SetValidator(validator func() error) {
	d.al.SetValidator(validator)
}

// Store exposes the parameter store for local reads and writes
func (d *Device) Store() *param.Store {
	return d.store
}

// GetDeviceCom returns the communication parameters
func (d *Device) GetDeviceCom() sm.ComParameters {
	return d.sm.GetDeviceCom()
}

// GetDeviceIdent returns the device identification
func (d *Device) GetDeviceIdent() sm.Identification {
	return d.sm.GetDeviceIdent()
}

// SetDeviceIdent replaces the device identification, allowed before
// communication is running only
func (d *Device) SetDeviceIdent(ident sm.Identification) error {
	return d.sm.SetDeviceIdent(ident)
}
