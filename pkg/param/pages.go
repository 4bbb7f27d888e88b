package param

// Identity holds the values published through the direct parameter
// pages and the standard ISDU indices
type Identity struct {
	VendorID            uint16
	DeviceID            uint32 // 24 bit, split over DeviceID1..3
	FunctionID          uint16
	RevisionID          uint8
	MinCycleTime        uint8
	MSequenceCapability uint8
	ProcessDataIn       uint8 // PD input descriptor octet
	ProcessDataOut      uint8 // PD output descriptor octet
	VendorName          string
	ProductName         string
}

// Access rights of Direct Parameter Page 1, indexed by page address
var page1Attributes = map[uint8]Attribute{
	AddrMasterCommand:       AttributeWrite,
	AddrMasterCycleTime:     AttributeRw,
	AddrMinCycleTime:        AttributeRead,
	AddrMSequenceCapability: AttributeRead,
	AddrRevisionID:          AttributeRw,
	AddrProcessDataIn:       AttributeRead,
	AddrProcessDataOut:      AttributeRead,
	AddrVendorID1:           AttributeRead,
	AddrVendorID2:           AttributeRead,
	AddrDeviceID1:           AttributeRw,
	AddrDeviceID2:           AttributeRw,
	AddrDeviceID3:           AttributeRw,
	AddrFunctionID1:         AttributeRead,
	AddrFunctionID2:         AttributeRead,
	AddrReserved:            0,
	AddrSystemCommand:       AttributeWrite,
}

var page1Names = map[uint8]string{
	AddrMasterCommand:       "MasterCommand",
	AddrMasterCycleTime:     "MasterCycleTime",
	AddrMinCycleTime:        "MinCycleTime",
	AddrMSequenceCapability: "MSequenceCapability",
	AddrRevisionID:          "RevisionID",
	AddrProcessDataIn:       "ProcessDataIn",
	AddrProcessDataOut:      "ProcessDataOut",
	AddrVendorID1:           "VendorID1",
	AddrVendorID2:           "VendorID2",
	AddrDeviceID1:           "DeviceID1",
	AddrDeviceID2:           "DeviceID2",
	AddrDeviceID3:           "DeviceID3",
	AddrFunctionID1:         "FunctionID1",
	AddrFunctionID2:         "FunctionID2",
	AddrReserved:            "Reserved",
	AddrSystemCommand:       "SystemCommand",
}

const dsIndexListLength = 30

// NewDefaultStore builds the mandatory parameter space of a device :
// both direct parameter pages, the system command and data storage
// indices and the name strings.
func NewDefaultStore(ident Identity) *Store {
	store := NewStore()

	page1Defaults := map[uint8]byte{
		AddrMinCycleTime:        ident.MinCycleTime,
		AddrMSequenceCapability: ident.MSequenceCapability,
		AddrRevisionID:          ident.RevisionID,
		AddrProcessDataIn:       ident.ProcessDataIn,
		AddrProcessDataOut:      ident.ProcessDataOut,
		AddrVendorID1:           uint8(ident.VendorID >> 8),
		AddrVendorID2:           uint8(ident.VendorID),
		AddrDeviceID1:           uint8(ident.DeviceID >> 16),
		AddrDeviceID2:           uint8(ident.DeviceID >> 8),
		AddrDeviceID3:           uint8(ident.DeviceID),
		AddrFunctionID1:         uint8(ident.FunctionID >> 8),
		AddrFunctionID2:         uint8(ident.FunctionID),
	}

	page1 := store.AddEntry(IndexDirectPage1, "DirectParameterPage1")
	for address := AddrMasterCommand; address <= AddrSystemCommand; address++ {
		page1.variables[address] = NewVariable(
			address,
			page1Names[address],
			page1Attributes[address],
			[]byte{page1Defaults[address]},
		)
	}

	page2 := store.AddEntry(IndexDirectPage2, "DirectParameterPage2")
	for address := uint8(0x10); address <= 0x1F; address++ {
		page2.variables[address] = NewVariable(address, "VendorSpecific", AttributeRw, []byte{0})
	}

	store.AddVariable(IndexSystemCommand, "SystemCommand", AttributeWrite, []byte{0})

	ds := store.AddEntry(IndexDataStorage, "DataStorage")
	ds.variables[SubDsCommand] = NewVariable(SubDsCommand, "DsCommand", AttributeWrite, []byte{0})
	ds.variables[SubDsStateProperty] = NewVariable(SubDsStateProperty, "StateProperty", AttributeRead, []byte{0})
	ds.variables[SubDsSize] = NewVariable(SubDsSize, "Size", AttributeRead, make([]byte, 4))
	ds.variables[SubDsChecksum] = NewVariable(SubDsChecksum, "Checksum", AttributeRead, make([]byte, 4))
	ds.variables[SubDsIndexList] = NewVariable(SubDsIndexList, "IndexList", AttributeRead, make([]byte, dsIndexListLength))

	store.AddVariable(IndexVendorName, "VendorName", AttributeRead, fixedString(ident.VendorName, 7))
	store.AddVariable(IndexProductName, "ProductName", AttributeRead, fixedString(ident.ProductName, 7))

	return store
}

// fixedString pads or truncates s to a fixed octet length
func fixedString(s string, length int) []byte {
	data := make([]byte, length)
	copy(data, s)
	return data
}
