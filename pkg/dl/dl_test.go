package dl

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/frame"
	"github.com/Raghava-Ch/goiolink/pkg/param"
)

type smRecorder struct {
	modes  []Mode
	rates  []iolink.TransmissionRate
	writes map[uint8]byte
}

func (s *smRecorder) DLModeInd(mode Mode, rate iolink.TransmissionRate) {
	s.modes = append(s.modes, mode)
	s.rates = append(s.rates, rate)
}

func (s *smRecorder) DLWriteInd(address uint8, value byte) {
	s.writes[address] = value
}

func (s *smRecorder) DLReadInd(address uint8, value byte) {}

type alRecorder struct {
	requests []frame.ISDURequest
	aborts   int
	pdOut    [][]byte
	pdIn     []byte
	pdValid  bool
}

func (a *alRecorder) ISDUTransportInd(request frame.ISDURequest) {
	a.requests = append(a.requests, request)
}

func (a *alRecorder) ISDUAbortInd() {
	a.aborts++
}

func (a *alRecorder) PDOutputInd(data []byte) {
	a.pdOut = append(a.pdOut, append([]byte{}, data...))
}

func (a *alRecorder) PDInputReq() ([]byte, bool) {
	return a.pdIn, a.pdValid
}

type wireRecorder struct {
	sent [][]byte
}

func (w *wireRecorder) Connect(...any) error                  { return nil }
func (w *wireRecorder) Disconnect() error                     { return nil }
func (w *wireRecorder) SetMode(mode iolink.PortMode) error    { return nil }
func (w *wireRecorder) Subscribe(iolink.OctetListener) error  { return nil }
func (w *wireRecorder) Send(data []byte) error {
	w.sent = append(w.sent, append([]byte{}, data...))
	return nil
}

func (w *wireRecorder) last() []byte {
	if len(w.sent) == 0 {
		return nil
	}
	return w.sent[len(w.sent)-1]
}

var testIdentity = param.Identity{
	VendorID:     0x01B6,
	DeviceID:     0x0000A1,
	MinCycleTime: 0x20,
	RevisionID:   0x11,
	VendorName:   "VendorA",
	ProductName:  "Dev",
}

func newTestDL(t *testing.T) (*DL, *smRecorder, *alRecorder, *wireRecorder) {
	sm := &smRecorder{writes: map[uint8]byte{}}
	al := &alRecorder{pdIn: []byte{0x00, 0x00}, pdValid: true}
	wire := &wireRecorder{}
	cfg := Config{
		Sizes:          frame.Sizes{ODPreoperate: 8, ODOperate: 2, PDIn: 2, PDOut: 2},
		Rate:           iolink.RateCom3,
		PreoperateType: frame.Type1,
		OperateType:    frame.Type2,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dl, err := NewDL(cfg, param.NewDefaultStore(testIdentity), wire, sm, al, logger)
	require.Nil(t, err)
	return dl, sm, al, wire
}

func masterFrame(mc frame.MC, mtype frame.Type, payload ...byte) []byte {
	data := append([]byte{uint8(mc), uint8(frame.NewCKT(mtype, 0))}, payload...)
	data[1] = uint8(frame.NewCKT(mtype, frame.Checksum6(data)))
	return data
}

func feed(dl *DL, now time.Time, data []byte) {
	for _, octet := range data {
		dl.Handle(octet)
	}
	dl.Poll(now)
}

// startCom drives the handler from SIO to the STARTUP phase
func startCom(t *testing.T, dl *DL, now time.Time) {
	require.Nil(t, dl.WakeUp())
	dl.Poll(now)
	require.Nil(t, dl.ComEstablished(iolink.RateCom3))
	dl.Poll(now)
	require.Equal(t, ModeStartup, dl.Mode())
}

// pageWrite sends a startup phase page write frame
func pageWrite(dl *DL, now time.Time, address uint8, value byte) {
	feed(dl, now, masterFrame(frame.NewMC(frame.DirWrite, frame.ChannelPage, address), frame.Type0, value))
}

func toPreoperate(t *testing.T, dl *DL, now time.Time) {
	startCom(t, dl, now)
	pageWrite(dl, now, param.AddrMasterCommand, frame.MasterCmdDevicePreoperate)
	require.Equal(t, ModePreoperate, dl.Mode())
}

func toOperate(t *testing.T, dl *DL, now time.Time) {
	startCom(t, dl, now)
	pageWrite(dl, now, param.AddrMasterCommand, frame.MasterCmdDeviceOperate)
	require.Equal(t, ModeOperate, dl.Mode())
}

func TestModeIndicationSequence(t *testing.T) {
	dl, sm, _, _ := newTestDL(t)
	now := time.Now()

	toPreoperate(t, dl, now)
	pageWrite(dl, now, param.AddrMasterCommand, frame.MasterCmdDeviceOperate)

	assert.Equal(t, []Mode{ModeEstablishCom, ModeCom3, ModePreoperate, ModeOperate}, sm.modes)
}

func TestWakeUpWhileActive(t *testing.T) {
	dl, _, _, _ := newTestDL(t)
	now := time.Now()
	startCom(t, dl, now)

	assert.Equal(t, iolink.ErrInvalidEvent, dl.WakeUp())
}

func TestEstablishComTimeout(t *testing.T) {
	dl, sm, _, _ := newTestDL(t)
	now := time.Now()

	require.Nil(t, dl.WakeUp())
	dl.Poll(now)
	assert.Equal(t, ModeEstablishCom, dl.Mode())

	// No master frame within TDSIO, back to SIO
	dl.Poll(now.Add(time.Second))
	assert.Equal(t, ModeInactive, dl.Mode())
	assert.Equal(t, ModeInactive, sm.modes[len(sm.modes)-1])
}

func TestStartupPageRead(t *testing.T) {
	dl, _, _, wire := newTestDL(t)
	now := time.Now()
	startCom(t, dl, now)

	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime), frame.Type0))

	reply := wire.last()
	require.Len(t, reply, 2)
	assert.EqualValues(t, 0x20, reply[0])
	assert.EqualValues(t, frame.Checksum6([]byte{reply[0], 0}), frame.CKS(reply[1]).Checksum())
}

func TestChecksumMismatchDroppedSilently(t *testing.T) {
	dl, _, _, wire := newTestDL(t)
	now := time.Now()
	startCom(t, dl, now)

	data := masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime), frame.Type0)
	data[1] ^= 0x01
	feed(dl, now, data)

	assert.Empty(t, wire.sent)
	assert.Equal(t, ModeStartup, dl.Mode())

	// The retry with a correct checksum is served
	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime), frame.Type0))
	assert.Len(t, wire.sent, 1)
}

func TestIllegalTypeFallsBackToStartup(t *testing.T) {
	dl, _, _, _ := newTestDL(t)
	now := time.Now()
	toPreoperate(t, dl, now)

	// PREOPERATE expects type 1 frames
	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime), frame.Type0))

	assert.Equal(t, ModeStartup, dl.Mode())
}

func TestCycleTimeFaultKeepsOperate(t *testing.T) {
	dl, _, _, wire := newTestDL(t)
	now := time.Now()
	toOperate(t, dl, now)

	// 0x20 with time base 0 is 3.2 ms
	feed(dl, now, masterFrame(frame.NewMC(frame.DirWrite, frame.ChannelPage, param.AddrMasterCycleTime),
		frame.Type2, 0x00, 0x00, 0x20, 0x00))
	require.Equal(t, ModeOperate, dl.Mode())

	// The next frame arms the supervision, then the master goes silent.
	// A slow master is a timing fault, not a phase change.
	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime),
		frame.Type2, 0x00, 0x00))
	dl.Poll(now.Add(time.Second))
	assert.Equal(t, ModeOperate, dl.Mode())

	// The resuming master is still served in OPERATE
	sent := len(wire.sent)
	feed(dl, now.Add(time.Second), masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime),
		frame.Type2, 0x00, 0x00))
	require.Len(t, wire.sent, sent+1)
	assert.EqualValues(t, 0x20, wire.last()[0])
}

func TestStartupCommandAbortsIsdu(t *testing.T) {
	dl, _, al, wire := newTestDL(t)
	now := time.Now()
	toPreoperate(t, dl, now)

	request := []byte{frame.ISDUReadIndex<<4 | 3, 0x10}
	request = append(request, request[0]^request[1])
	isduFrame(dl, now, frame.DirWrite, frame.FlowStart, request)
	isduFrame(dl, now, frame.DirRead, frame.FlowStart, nil)
	require.Len(t, al.requests, 1)

	// Master commands STARTUP while the transfer is open
	feed(dl, now, masterFrame(frame.NewMC(frame.DirWrite, frame.ChannelPage, param.AddrMasterCommand),
		frame.Type1, append([]byte{frame.MasterCmdDeviceStartup}, make([]byte, 7)...)...))
	require.Equal(t, ModeStartup, dl.Mode())
	assert.Equal(t, 1, al.aborts)

	// The ISDU channel reports no service in STARTUP
	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelISDU, frame.FlowStart), frame.Type0))
	require.NotEmpty(t, wire.sent)
	assert.EqualValues(t, 0x00, wire.last()[0])

	// Event signalling is stopped as well
	assert.Equal(t, iolink.ErrNotActive, dl.SendEvents([]Event{{Qualifier: 0xE4, Code: 0x8CA0}}))
}

func TestComEstablishedBeforeWakeUp(t *testing.T) {
	dl, sm, _, _ := newTestDL(t)
	now := time.Now()

	// Rejected outside EstablishCom and must not latch the rate
	assert.Equal(t, iolink.ErrInvalidEvent, dl.ComEstablished(iolink.RateCom2))

	require.Nil(t, dl.WakeUp())
	dl.Poll(now)
	dl.Poll(now.Add(time.Second))
	require.Equal(t, ModeInactive, dl.Mode())
	assert.EqualValues(t, 0, sm.rates[len(sm.rates)-1])
}

func TestFallbackToInactive(t *testing.T) {
	dl, sm, _, wire := newTestDL(t)
	now := time.Now()
	toPreoperate(t, dl, now)

	feed(dl, now, masterFrame(frame.NewMC(frame.DirWrite, frame.ChannelPage, param.AddrMasterCommand),
		frame.Type1, append([]byte{frame.MasterCmdFallback}, make([]byte, 7)...)...))

	// The fallback command is still acknowledged on the wire
	assert.NotEmpty(t, wire.sent)
	assert.Equal(t, ModeInactive, dl.Mode())

	// SIO is indicated once the fallback delay has elapsed
	dl.Poll(now.Add(10 * time.Millisecond))
	assert.Equal(t, ModeInactive, sm.modes[len(sm.modes)-1])
}

func TestOperateProcessData(t *testing.T) {
	dl, _, al, wire := newTestDL(t)
	now := time.Now()
	toOperate(t, dl, now)
	al.pdIn = []byte{0xAA, 0xBB}

	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime),
		frame.Type2, 0x11, 0x22))

	require.Len(t, al.pdOut, 1)
	assert.Equal(t, []byte{0x11, 0x22}, al.pdOut[0])

	// Reply layout : OD(2) PDin(2) CKS
	reply := wire.last()
	require.Len(t, reply, 5)
	assert.EqualValues(t, 0x20, reply[0])
	assert.Equal(t, []byte{0xAA, 0xBB}, reply[2:4])
	assert.Equal(t, frame.PDValid, frame.CKS(reply[4]).PDStatus())
}

func TestOperateInvalidProcessData(t *testing.T) {
	dl, _, al, wire := newTestDL(t)
	now := time.Now()
	toOperate(t, dl, now)
	al.pdIn = []byte{0x00, 0x00}
	al.pdValid = false

	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelPage, param.AddrMinCycleTime),
		frame.Type2, 0x00, 0x00))

	reply := wire.last()
	require.Len(t, reply, 5)
	assert.Equal(t, frame.PDInvalid, frame.CKS(reply[4]).PDStatus())
}

// isduFrame sends one ISDU channel access in the PREOPERATE phase
func isduFrame(dl *DL, now time.Time, dir frame.RWDirection, flowCtrl uint8, od []byte) {
	payload := make([]byte, 8)
	copy(payload, od)
	if dir == frame.DirRead {
		payload = nil
	}
	feed(dl, now, masterFrame(frame.NewMC(dir, frame.ChannelISDU, flowCtrl), frame.Type1, payload...))
}

func TestIsduReadTransfer(t *testing.T) {
	dl, _, al, wire := newTestDL(t)
	now := time.Now()
	toPreoperate(t, dl, now)

	// Read request for index 0x10, compact PDU of three octets
	request := []byte{frame.ISDUReadIndex<<4 | 3, 0x10}
	request = append(request, request[0]^request[1])
	isduFrame(dl, now, frame.DirWrite, frame.FlowStart, request)

	// Handed over to the application, busy while it resolves
	isduFrame(dl, now, frame.DirRead, frame.FlowStart, nil)
	require.Len(t, al.requests, 1)
	assert.Equal(t, uint16(0x10), al.requests[0].Index)
	assert.Equal(t, frame.DirRead, al.requests[0].Dir)
	busy := wire.last()
	assert.EqualValues(t, 0x01, busy[0])

	require.Nil(t, dl.ISDUReadRsp([]byte("VendorA")))

	// First response segment carries the PDU header and data
	isduFrame(dl, now, frame.DirRead, frame.FlowStart, nil)
	segment := wire.last()
	require.Len(t, segment, 9)
	assert.EqualValues(t, frame.ISDUReadSuccess<<4|9, segment[0])
	assert.Equal(t, []byte("VendorA"), segment[1:8])

	// Second segment carries the trailing ChkPDU octet
	isduFrame(dl, now, frame.DirRead, 0x01, nil)
	segment = wire.last()
	require.Len(t, segment, 9)
	var chk byte
	for _, octet := range append([]byte{frame.ISDUReadSuccess<<4 | 9}, []byte("VendorA")...) {
		chk ^= octet
	}
	assert.Equal(t, chk, segment[0])

	// Master confirms with the idle flow control value
	isduFrame(dl, now, frame.DirRead, frame.FlowIdle, nil)
	assert.EqualValues(t, 0x00, wire.last()[0])
}

func TestIsduErrorResponse(t *testing.T) {
	dl, _, al, wire := newTestDL(t)
	now := time.Now()
	toPreoperate(t, dl, now)

	request := []byte{frame.ISDUReadIndex<<4 | 3, 0x60}
	request = append(request, request[0]^request[1])
	isduFrame(dl, now, frame.DirWrite, frame.FlowStart, request)
	isduFrame(dl, now, frame.DirRead, frame.FlowStart, nil)
	require.Len(t, al.requests, 1)

	require.Nil(t, dl.ISDUErrorRsp(frame.DirRead, iolink.ErrIndexNotAvailable))

	isduFrame(dl, now, frame.DirRead, frame.FlowStart, nil)
	segment := wire.last()
	assert.EqualValues(t, frame.ISDUReadFailure<<4|4, segment[0])
	assert.EqualValues(t, 0x80, segment[1])
	assert.EqualValues(t, 0x11, segment[2])
}

func TestIsduAbortNotifiesApplication(t *testing.T) {
	dl, _, al, _ := newTestDL(t)
	now := time.Now()
	toPreoperate(t, dl, now)

	request := []byte{frame.ISDUReadIndex<<4 | 3, 0x10}
	request = append(request, request[0]^request[1])
	isduFrame(dl, now, frame.DirWrite, frame.FlowStart, request)
	isduFrame(dl, now, frame.DirRead, frame.FlowStart, nil)
	require.Len(t, al.requests, 1)

	isduFrame(dl, now, frame.DirRead, frame.FlowAbort, nil)
	assert.Equal(t, 1, al.aborts)
}

func TestEventReadout(t *testing.T) {
	dl, _, _, wire := newTestDL(t)
	now := time.Now()
	toPreoperate(t, dl, now)

	require.Nil(t, dl.SendEvents([]Event{{Qualifier: 0xE4, Code: 0x8CA0}}))

	// Event memory readout, the event flag is set in the CKS octet
	feed(dl, now, masterFrame(frame.NewMC(frame.DirRead, frame.ChannelDiagnosis, 0), frame.Type1))
	reply := wire.last()
	require.Len(t, reply, 9)
	assert.EqualValues(t, 0x81, reply[0]) // details bit and slot 0
	assert.EqualValues(t, 0xE4, reply[1])
	assert.EqualValues(t, 0x8C, reply[2])
	assert.EqualValues(t, 0xA0, reply[3])
	assert.True(t, frame.CKS(reply[8]).EventFlag())

	// Writing the status code confirms the readout and clears the flag
	feed(dl, now, masterFrame(frame.NewMC(frame.DirWrite, frame.ChannelDiagnosis, 0),
		frame.Type1, make([]byte, 8)...))
	reply = wire.last()
	require.Len(t, reply, 1)
	assert.False(t, frame.CKS(reply[0]).EventFlag())

	// The memory is free for the next event
	assert.Nil(t, dl.SendEvents([]Event{{Qualifier: 0xE4, Code: 0x8CA1}}))
}

func TestEventsInactiveInStartup(t *testing.T) {
	dl, _, _, _ := newTestDL(t)
	now := time.Now()
	startCom(t, dl, now)

	assert.Equal(t, iolink.ErrNotActive, dl.SendEvents([]Event{{Qualifier: 0xE4, Code: 0x8CA0}}))
}

func TestMasterCommandReportedToSM(t *testing.T) {
	dl, sm, _, _ := newTestDL(t)
	now := time.Now()
	startCom(t, dl, now)

	pageWrite(dl, now, param.AddrMasterCommand, frame.MasterCmdMasterIdent)

	assert.Equal(t, frame.MasterCmdMasterIdent, sm.writes[param.AddrMasterCommand])
	assert.Equal(t, ModeStartup, dl.Mode())
}

func TestPDOutputOperateCommand(t *testing.T) {
	dl, _, _, _ := newTestDL(t)
	now := time.Now()
	toOperate(t, dl, now)
	require.False(t, dl.PDOutputValid())

	feed(dl, now, masterFrame(frame.NewMC(frame.DirWrite, frame.ChannelPage, param.AddrMasterCommand),
		frame.Type2, 0x00, 0x00, frame.MasterCmdPDOutputOperate, 0x00))

	assert.True(t, dl.PDOutputValid())
}
