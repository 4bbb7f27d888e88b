package device

import (
	"log/slog"
	"sync"

	iolink "github.com/Raghava-Ch/goiolink"
	"github.com/Raghava-Ch/goiolink/pkg/param"
)

// Data storage state property octet : bits 1..0 carry the transfer
// state, bit 7 flags a pending upload request
// Parameters below this index are standard objects, excluded from the
// data storage index list
const firstVendorIndex uint16 = 0x0040

const (
	dsStateInactive uint8 = 0x00
	dsStateUpload   uint8 = 0x01
	dsStateDownload uint8 = 0x02
	dsUploadFlag    uint8 = 0x80
)

// dataStorage implements [al.DataStorage]. It tracks the transfer
// state the master drives through the data storage object and mirrors
// it into the state property for readout.
type dataStorage struct {
	logger *slog.Logger
	store  *param.Store

	mu            sync.Mutex
	state         uint8
	uploadPending bool
}

func newDataStorage(store *param.Store, logger *slog.Logger) *dataStorage {
	ds := &dataStorage{
		logger: logger.With("service", "[DS]"),
		store:  store,
		state:  dsStateInactive,
	}
	ds.publishIndexList()
	return ds
}

// publishIndexList fills the data storage index list with the vendor
// parameter indices subject to storage, two octets each, zero padded
func (ds *dataStorage) publishIndexList() {
	current, err := ds.store.Read(param.IndexDataStorage, param.SubDsIndexList)
	if err != nil {
		return
	}
	list := make([]byte, len(current))
	position := 0
	for _, index := range ds.store.Indices() {
		if index < firstVendorIndex || position+2 > len(list) {
			continue
		}
		list[position] = uint8(index >> 8)
		list[position+1] = uint8(index)
		position += 2
	}
	err = ds.store.LocalWrite(param.IndexDataStorage, param.SubDsIndexList, list)
	if err != nil {
		ds.logger.Error("index list update failed", "err", err)
	}
}

// UploadRequestInd flags a validated parameter set for upload.
// The master observes the flag in the state property and starts the
// upload with a data storage command.
func (ds *dataStorage) UploadRequestInd() {
	ds.mu.Lock()
	ds.uploadPending = true
	ds.mu.Unlock()
	ds.logger.Info("upload request flagged")
	ds.publishState()
}

// Command executes a data storage command written by the master
func (ds *dataStorage) Command(cmd uint8) error {
	ds.mu.Lock()
	switch cmd {
	case param.DsCommandUploadStart:
		ds.state = dsStateUpload
		ds.uploadPending = false
	case param.DsCommandDownloadStart:
		ds.state = dsStateDownload
	case param.DsCommandBreak:
		ds.state = dsStateInactive
	default:
		ds.mu.Unlock()
		return iolink.ErrFuncNotAvailable
	}
	ds.mu.Unlock()
	ds.logger.Debug("data storage command", "cmd", cmd)
	ds.publishState()
	return nil
}

// publishState mirrors the state into the readable state property
func (ds *dataStorage) publishState() {
	ds.mu.Lock()
	value := ds.state
	if ds.uploadPending {
		value |= dsUploadFlag
	}
	ds.mu.Unlock()
	err := ds.store.LocalWrite(param.IndexDataStorage, param.SubDsStateProperty, []byte{value})
	if err != nil {
		ds.logger.Error("state property update failed", "err", err)
	}
}
