package device

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
)

// Config holds the fixed characteristics of one device
type Config struct {
	VendorID   uint16
	DeviceID   uint32 // 24 bit
	FunctionID uint16
	RevisionID uint8

	VendorName  string
	ProductName string

	Rate                iolink.TransmissionRate
	SIOMode             iolink.PortMode
	MinCycleTime        uint8
	MSequenceCapability uint8

	PDInLength        uint8
	PDOutLength       uint8
	ODPreoperate      uint8
	ODOperate         uint8
	PreoperateType    frame.Type
	OperateType       frame.Type

	SupportsBlockParam  bool
	SupportsDataStorage bool

	// Optional device profile loaded into the parameter store
	ProfilePath string

	PollPeriod time.Duration
}

// DefaultConfig returns a minimal COM3 device with one octet of
// process data in each direction
func DefaultConfig() Config {
	return Config{
		RevisionID:          0x11, // protocol revision 1.1
		Rate:                iolink.RateCom3,
		SIOMode:             iolink.PortDI,
		MinCycleTime:        0x20,
		MSequenceCapability: 0x01,
		PDInLength:          1,
		PDOutLength:         1,
		ODPreoperate:        8,
		ODOperate:           2,
		PreoperateType:      frame.Type1,
		OperateType:         frame.Type2,
		SupportsBlockParam:  true,
		SupportsDataStorage: true,
		PollPeriod:          100 * time.Microsecond,
	}
}

// Validate checks that the configured lengths are usable
func (cfg Config) Validate() error {
	if cfg.Rate.Baud() == 0 {
		return iolink.ErrIllegalArgument
	}
	if cfg.ODPreoperate == 0 || cfg.ODOperate == 0 {
		return iolink.ErrIllegalArgument
	}
	if cfg.PollPeriod <= 0 {
		return iolink.ErrIllegalArgument
	}
	return nil
}

// LoadConfig reads a device configuration ini file :
//
//	[Identity]
//	VendorID=0x01B6
//	DeviceID=0x0000A1
//	VendorName=VendorA
//
//	[Communication]
//	Rate=COM3
//	MinCycleTime=0x20
//
//	[ProcessData]
//	InputLength=2
//	OutputLength=2
//
// Missing keys keep the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	source, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}

	identity := source.Section("Identity")
	cfg.VendorID = uint16(identity.Key("VendorID").MustUint(uint(cfg.VendorID)))
	cfg.DeviceID = uint32(identity.Key("DeviceID").MustUint(uint(cfg.DeviceID)))
	cfg.FunctionID = uint16(identity.Key("FunctionID").MustUint(uint(cfg.FunctionID)))
	cfg.RevisionID = uint8(identity.Key("RevisionID").MustUint(uint(cfg.RevisionID)))
	cfg.VendorName = identity.Key("VendorName").MustString(cfg.VendorName)
	cfg.ProductName = identity.Key("ProductName").MustString(cfg.ProductName)

	com := source.Section("Communication")
	if rate := com.Key("Rate").String(); rate != "" {
		cfg.Rate, err = parseRate(rate)
		if err != nil {
			return cfg, err
		}
	}
	if sio := com.Key("SIOMode").String(); sio != "" {
		cfg.SIOMode, err = parseSIOMode(sio)
		if err != nil {
			return cfg, err
		}
	}
	cfg.MinCycleTime = uint8(com.Key("MinCycleTime").MustUint(uint(cfg.MinCycleTime)))
	cfg.MSequenceCapability = uint8(com.Key("MSequenceCapability").MustUint(uint(cfg.MSequenceCapability)))

	pd := source.Section("ProcessData")
	cfg.PDInLength = uint8(pd.Key("InputLength").MustUint(uint(cfg.PDInLength)))
	cfg.PDOutLength = uint8(pd.Key("OutputLength").MustUint(uint(cfg.PDOutLength)))
	cfg.ODPreoperate = uint8(pd.Key("ODPreoperate").MustUint(uint(cfg.ODPreoperate)))
	cfg.ODOperate = uint8(pd.Key("ODOperate").MustUint(uint(cfg.ODOperate)))

	features := source.Section("Features")
	cfg.SupportsBlockParam = features.Key("BlockParameterization").MustBool(cfg.SupportsBlockParam)
	cfg.SupportsDataStorage = features.Key("DataStorage").MustBool(cfg.SupportsDataStorage)
	cfg.ProfilePath = features.Key("ProfilePath").MustString(cfg.ProfilePath)

	return cfg, nil
}

func parseRate(rate string) (iolink.TransmissionRate, error) {
	switch strings.ToUpper(rate) {
	case "COM1":
		return iolink.RateCom1, nil
	case "COM2":
		return iolink.RateCom2, nil
	case "COM3":
		return iolink.RateCom3, nil
	default:
		return 0, fmt.Errorf("unknown transmission rate %v", rate)
	}
}

func parseSIOMode(mode string) (iolink.PortMode, error) {
	switch strings.ToUpper(mode) {
	case "DI":
		return iolink.PortDI, nil
	case "DO":
		return iolink.PortDO, nil
	case "INACTIVE":
		return iolink.PortInactive, nil
	default:
		return 0, fmt.Errorf("unknown sio mode %v", mode)
	}
}
