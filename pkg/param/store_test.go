package param

import (
	"testing"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{
	VendorID:            0x01AB,
	DeviceID:            0x112233,
	FunctionID:          0x0001,
	RevisionID:          0x11,
	MinCycleTime:        0x23,
	MSequenceCapability: 0x02,
	ProcessDataIn:       0x02,
	ProcessDataOut:      0x02,
	VendorName:          "ACME",
	ProductName:         "SENSOR",
}

func TestDefaultStoreIdentity(t *testing.T) {
	store := NewDefaultStore(testIdentity)

	value, err := store.DirectRead(AddrVendorID1)
	require.Nil(t, err)
	assert.EqualValues(t, 0x01, value)
	value, err = store.DirectRead(AddrVendorID2)
	require.Nil(t, err)
	assert.EqualValues(t, 0xAB, value)

	value, err = store.DirectRead(AddrDeviceID1)
	require.Nil(t, err)
	assert.EqualValues(t, 0x11, value)
	value, err = store.DirectRead(AddrDeviceID3)
	require.Nil(t, err)
	assert.EqualValues(t, 0x33, value)

	value, err = store.DirectRead(AddrMinCycleTime)
	require.Nil(t, err)
	assert.EqualValues(t, 0x23, value)
}

func TestAccessRights(t *testing.T) {
	store := NewDefaultStore(testIdentity)

	// MasterCommand is write only
	_, err := store.DirectRead(AddrMasterCommand)
	assert.Equal(t, iolink.ErrServiceNotAvail, err)
	assert.Nil(t, store.DirectWrite(AddrMasterCommand, 0x99))

	// MinCycleTime is read only
	assert.Equal(t, iolink.ErrIndexNotWritable, store.DirectWrite(AddrMinCycleTime, 0x01))

	// Vendor page is read write
	assert.Nil(t, store.DirectWrite(0x10, 0x55))
	value, err := store.DirectRead(0x10)
	require.Nil(t, err)
	assert.EqualValues(t, 0x55, value)
}

func TestAbsentIndexAndSubindex(t *testing.T) {
	store := NewDefaultStore(testIdentity)
	_, err := store.Read(0x4000, 0)
	assert.Equal(t, iolink.ErrIndexNotAvailable, err)
	_, err = store.Read(IndexDataStorage, 0x20)
	assert.Equal(t, iolink.ErrSubindexNotAvail, err)
	err = store.Write(0x4000, 0, []byte{1})
	assert.Equal(t, iolink.ErrIndexNotAvailable, err)
}

func TestWriteLengthChecks(t *testing.T) {
	store := NewStore()
	store.AddVariable(0x0040, "SetPoint", AttributeRw, []byte{0, 0})

	assert.Equal(t, iolink.ErrValueLenOverrun, store.Write(0x0040, 0, []byte{1, 2, 3}))
	assert.Equal(t, iolink.ErrValueLenUnderrun, store.Write(0x0040, 0, []byte{1}))
	assert.Nil(t, store.Write(0x0040, 0, []byte{1, 2}))
}

func TestWriteIsIdempotent(t *testing.T) {
	store := NewStore()
	store.AddVariable(0x0040, "SetPoint", AttributeRw, []byte{0})

	require.Nil(t, store.Write(0x0040, 0, []byte{7}))
	require.Nil(t, store.Write(0x0040, 0, []byte{7}))
	value, err := store.Read(0x0040, 0)
	require.Nil(t, err)
	assert.Equal(t, []byte{7}, value)
}

func TestStagedWrites(t *testing.T) {
	store := NewStore()
	store.AddVariable(0x0040, "SetPoint", AttributeRw, []byte{0})
	store.AddVariable(0x0041, "Threshold", AttributeRw, []byte{0})

	require.Nil(t, store.StageWrite(0x0040, 0, []byte{1}))
	require.Nil(t, store.StageWrite(0x0041, 0, []byte{2}))
	assert.Equal(t, 2, store.StagedCount())

	// Values are untouched until commit
	value, _ := store.Read(0x0040, 0)
	assert.Equal(t, []byte{0}, value)

	require.Nil(t, store.CommitStaged())
	assert.Equal(t, 0, store.StagedCount())
	value, _ = store.Read(0x0040, 0)
	assert.Equal(t, []byte{1}, value)
	value, _ = store.Read(0x0041, 0)
	assert.Equal(t, []byte{2}, value)
}

func TestDiscardStaged(t *testing.T) {
	store := NewStore()
	store.AddVariable(0x0040, "SetPoint", AttributeRw, []byte{0})

	require.Nil(t, store.StageWrite(0x0040, 0, []byte{1}))
	store.DiscardStaged()
	assert.Equal(t, 0, store.StagedCount())
	value, _ := store.Read(0x0040, 0)
	assert.Equal(t, []byte{0}, value)
}

func TestStageWriteValidates(t *testing.T) {
	store := NewDefaultStore(testIdentity)
	assert.Equal(t, iolink.ErrIndexNotWritable, store.StageWrite(IndexDirectPage1, AddrMinCycleTime, []byte{1}))
	assert.Equal(t, iolink.ErrIndexNotAvailable, store.StageWrite(0x4000, 0, []byte{1}))
}

func TestExtensionHooks(t *testing.T) {
	store := NewStore()
	entry := store.AddVariable(0x0040, "Command", AttributeRw, []byte{0})

	var written []byte
	entry.AddExtension(nil,
		func(index uint16, subIndex uint8, value []byte) ([]byte, error) {
			return []byte{0x77}, nil
		},
		func(index uint16, subIndex uint8, data []byte) error {
			written = append([]byte{}, data...)
			return nil
		},
	)

	require.Nil(t, store.Write(0x0040, 0, []byte{5}))
	assert.Equal(t, []byte{5}, written)
	value, err := store.Read(0x0040, 0)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x77}, value)
}

func TestPageLocation(t *testing.T) {
	index, sub, err := PageLocation(0x0F)
	require.Nil(t, err)
	assert.Equal(t, IndexDirectPage1, index)
	assert.EqualValues(t, 0x0F, sub)

	index, _, err = PageLocation(0x10)
	require.Nil(t, err)
	assert.Equal(t, IndexDirectPage2, index)

	_, _, err = PageLocation(0x20)
	assert.Equal(t, iolink.ErrIllegalArgument, err)
}
