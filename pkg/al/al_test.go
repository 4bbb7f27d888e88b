package al

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/dl"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
	"github.com/Raghava-Ch/goiolink/pkg/param"
	"github.com/Raghava-Ch/goiolink/pkg/sm"
)

type dlRecorder struct {
	reads      [][]byte
	writeAcks  int
	errs       []iolink.ErrorType
	events     []dl.Event
	eventsErr  error
	eventCalls int
}

func (d *dlRecorder) ISDUReadRsp(data []byte) error {
	d.reads = append(d.reads, append([]byte{}, data...))
	return nil
}

func (d *dlRecorder) ISDUWriteRsp() error {
	d.writeAcks++
	return nil
}

func (d *dlRecorder) ISDUErrorRsp(dir frame.RWDirection, errType iolink.ErrorType) error {
	d.errs = append(d.errs, errType)
	return nil
}

func (d *dlRecorder) SendEvents(events []dl.Event) error {
	d.eventCalls++
	if d.eventsErr != nil {
		return d.eventsErr
	}
	d.events = append(d.events, events...)
	return nil
}

type dsRecorder struct {
	uploads  int
	commands []uint8
}

func (d *dsRecorder) UploadRequestInd() { d.uploads++ }
func (d *dsRecorder) Command(cmd uint8) error {
	d.commands = append(d.commands, cmd)
	return nil
}

const testIndex uint16 = 0x0040

func newTestAL(t *testing.T, blockParam bool) (*AL, *dlRecorder, *param.Store) {
	store := param.NewDefaultStore(param.Identity{
		MinCycleTime: 0x20,
		VendorName:   "VendorA",
	})
	store.AddVariable(testIndex, "SetPoint", param.AttributeRw, []byte{0x00, 0x00})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	al, err := NewAL(Config{PDInLength: 2, PDOutLength: 2, SupportsBlockParam: blockParam},
		store, Handlers{}, logger)
	require.Nil(t, err)
	wire := &dlRecorder{}
	al.AttachDL(wire)
	return al, wire, store
}

// writeCommand issues a system command and polls twice, once to
// resolve the write and once to execute the pending transition
func writeCommand(al *AL, cmd uint8) {
	al.ISDUTransportInd(frame.ISDURequest{
		Index: param.IndexSystemCommand,
		Data:  []byte{cmd},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	al.Poll()
}

func TestReadServedFromStore(t *testing.T) {
	al, wire, _ := newTestAL(t, true)

	al.ISDUTransportInd(frame.ISDURequest{Index: param.IndexVendorName, Dir: frame.DirRead})
	al.Poll()

	require.Len(t, wire.reads, 1)
	assert.Equal(t, []byte("VendorA"), wire.reads[0])
}

func TestReadAbsentParameter(t *testing.T) {
	al, wire, _ := newTestAL(t, true)

	al.ISDUTransportInd(frame.ISDURequest{Index: 0x7000, Dir: frame.DirRead})
	al.Poll()

	require.Len(t, wire.errs, 1)
	assert.Equal(t, iolink.ErrReadAbort, wire.errs[0])
}

func TestSingleWriteValidityCheck(t *testing.T) {
	al, wire, store := newTestAL(t, true)

	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x12, 0x34},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	// The write is staged until the validity check resolves
	assert.Equal(t, 0, wire.writeAcks)

	al.Poll()
	assert.Equal(t, 1, wire.writeAcks)
	value, err := store.Read(testIndex, 0)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, value)
}

func TestSingleWriteRejectedByValidator(t *testing.T) {
	al, wire, store := newTestAL(t, true)
	al.SetValidator(func() error { return iolink.ErrParamSetInvalid })

	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x12, 0x34},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	al.Poll()

	require.Len(t, wire.errs, 1)
	assert.Equal(t, iolink.ErrParamSetInvalid, wire.errs[0])
	value, err := store.Read(testIndex, 0)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x00, 0x00}, value)
}

func TestWriteWrongLength(t *testing.T) {
	al, wire, _ := newTestAL(t, true)

	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x12, 0x34, 0x56},
		Dir:   frame.DirWrite,
	})
	al.Poll()

	require.Len(t, wire.errs, 1)
	assert.Equal(t, iolink.ErrValueLenOverrun, wire.errs[0])
}

func TestDownloadHappyPath(t *testing.T) {
	al, wire, store := newTestAL(t, true)

	writeCommand(al, param.CommandParamDownloadStart)
	assert.Equal(t, 1, wire.writeAcks)
	assert.True(t, al.pm.locked)

	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x0A, 0x0B},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	assert.Equal(t, 2, wire.writeAcks)
	// Not effective before the validity check
	value, _ := store.Read(testIndex, 0)
	assert.Equal(t, []byte{0x00, 0x00}, value)

	writeCommand(al, param.CommandParamDownloadEnd)
	al.Poll()
	assert.Equal(t, 3, wire.writeAcks)
	assert.False(t, al.pm.locked)
	value, _ = store.Read(testIndex, 0)
	assert.Equal(t, []byte{0x0A, 0x0B}, value)
}

func TestDownloadStoreRequestsUpload(t *testing.T) {
	al, _, _ := newTestAL(t, true)
	ds := &dsRecorder{}
	al.SetDataStorage(ds)

	writeCommand(al, param.CommandParamDownloadStart)
	writeCommand(al, param.CommandParamDownloadStore)
	al.Poll()

	assert.Equal(t, 1, ds.uploads)
	assert.Equal(t, statePmIdle, al.pm.state)
}

func TestDownloadBreakDiscards(t *testing.T) {
	al, _, store := newTestAL(t, true)

	writeCommand(al, param.CommandParamDownloadStart)
	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x0A, 0x0B},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	require.Equal(t, 1, store.StagedCount())

	writeCommand(al, param.CommandParamBreak)
	al.Poll()

	assert.Equal(t, 0, store.StagedCount())
	assert.False(t, al.pm.locked)
	value, _ := store.Read(testIndex, 0)
	assert.Equal(t, []byte{0x00, 0x00}, value)
}

func TestBulkEndWhileIdle(t *testing.T) {
	al, wire, _ := newTestAL(t, true)
	writeCommand(al, param.CommandParamUploadEnd)
	require.Len(t, wire.errs, 1)
	assert.Equal(t, iolink.ErrFuncTempUnavail, wire.errs[0])

	al, wire, _ = newTestAL(t, false)
	writeCommand(al, param.CommandParamUploadEnd)
	require.Len(t, wire.errs, 1)
	assert.Equal(t, iolink.ErrFuncNotAvailable, wire.errs[0])
}

func TestUploadCycle(t *testing.T) {
	al, wire, _ := newTestAL(t, true)

	writeCommand(al, param.CommandParamUploadStart)
	assert.True(t, al.pm.locked)

	// Writes are rejected while the access is locked for upload
	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x0A, 0x0B},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	require.Len(t, wire.errs, 1)
	assert.Equal(t, iolink.ErrServiceNotAvail, wire.errs[0])

	// Reads are served
	al.ISDUTransportInd(frame.ISDURequest{Index: testIndex, Dir: frame.DirRead})
	al.Poll()
	assert.Len(t, wire.reads, 1)

	writeCommand(al, param.CommandParamUploadEnd)
	al.Poll()
	assert.False(t, al.pm.locked)
	assert.Equal(t, statePmIdle, al.pm.state)
}

func TestResetCollapsesBulkTransfer(t *testing.T) {
	al, _, store := newTestAL(t, true)

	writeCommand(al, param.CommandParamDownloadStart)
	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x0A, 0x0B},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	require.Equal(t, 1, store.StagedCount())

	writeCommand(al, param.CommandDeviceReset)
	al.Poll()

	assert.Equal(t, statePmIdle, al.pm.state)
	assert.False(t, al.pm.locked)
	assert.Equal(t, 0, store.StagedCount())
}

func TestDeviceModeChangeAbortsDownload(t *testing.T) {
	al, _, store := newTestAL(t, true)

	writeCommand(al, param.CommandParamDownloadStart)
	al.ISDUTransportInd(frame.ISDURequest{
		Index: testIndex,
		Data:  []byte{0x0A, 0x0B},
		Dir:   frame.DirWrite,
	})
	al.Poll()
	require.Equal(t, 1, store.StagedCount())

	al.DeviceModeInd(sm.DeviceModeStartup)
	al.Poll()

	assert.Equal(t, statePmIdle, al.pm.state)
	assert.Equal(t, 0, store.StagedCount())
}

func TestVendorCommandForwarded(t *testing.T) {
	var received uint8
	store := param.NewDefaultStore(param.Identity{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	al, err := NewAL(Config{SupportsBlockParam: true}, store, Handlers{
		OnSystemCommand: func(cmd uint8) error {
			received = cmd
			return nil
		},
	}, logger)
	require.Nil(t, err)
	al.AttachDL(&dlRecorder{})

	writeCommand(al, 0xA5)
	assert.EqualValues(t, 0xA5, received)
}

func TestSystemCommandViaDirectPage(t *testing.T) {
	al, _, store := newTestAL(t, true)

	// A page channel write to the system command address dispatches too
	require.Nil(t, store.DirectWrite(param.AddrSystemCommand, param.CommandParamDownloadStart))
	al.Poll()

	assert.Equal(t, statePmDownload, al.pm.state)
}

func TestDataStorageCommandForwarded(t *testing.T) {
	al, _, store := newTestAL(t, true)
	ds := &dsRecorder{}
	al.SetDataStorage(ds)

	require.Nil(t, store.Write(param.IndexDataStorage, param.SubDsCommand,
		[]byte{param.DsCommandUploadStart}))
	al.Poll()

	assert.Equal(t, []uint8{param.DsCommandUploadStart}, ds.commands)
}

func TestEventQueueing(t *testing.T) {
	al, wire, _ := newTestAL(t, true)

	al.SetEvent(0xE4, 0x8CA0)
	al.SetEvent(0xE4, 0x8CA1)
	al.Poll()

	require.Len(t, wire.events, 2)
	assert.Equal(t, dl.Event{Qualifier: 0xE4, Code: 0x8CA0}, wire.events[0])

	// A frozen event memory keeps the queue for the next poll
	al.SetEvent(0xE4, 0x8CA2)
	wire.eventsErr = iolink.ErrTimeout
	al.Poll()
	assert.Len(t, wire.events, 2)
	wire.eventsErr = nil
	al.Poll()
	assert.Len(t, wire.events, 3)
}

func TestProcessDataRoundTrip(t *testing.T) {
	al, _, _ := newTestAL(t, true)

	require.Nil(t, al.SetPDInput([]byte{0x11, 0x22}, true))
	data, valid := al.PDInputReq()
	assert.True(t, valid)
	assert.Equal(t, []byte{0x11, 0x22}, data)
	assert.Equal(t, iolink.ErrIllegalArgument, al.SetPDInput([]byte{0x11}, true))

	al.PDOutputInd([]byte{0xAA, 0xBB})
	assert.Equal(t, []byte{0xAA, 0xBB}, al.GetPDOutput())
}

func TestPDInputSnapshotIsolated(t *testing.T) {
	al, _, _ := newTestAL(t, true)

	require.Nil(t, al.SetPDInput([]byte{0x11, 0x22}, true))
	data, valid := al.PDInputReq()
	require.True(t, valid)

	// A later update must not reach into a snapshot already handed out
	require.Nil(t, al.SetPDInput([]byte{0x33, 0x44}, true))
	assert.Equal(t, []byte{0x11, 0x22}, data)
}
