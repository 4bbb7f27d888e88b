package param

import (
	"slices"

	iolink "github.com/Raghava-Ch/goiolink"
	log "github.com/sirupsen/logrus"
)

// StreamReader intercepts a parameter read before the stored value is
// returned. value is the stored value, the returned slice is sent to
// the master.
type StreamReader func(index uint16, subIndex uint8, value []byte) ([]byte, error)

// StreamWriter intercepts a parameter write after validation and before
// the value is stored. Returning an error rejects the write.
type StreamWriter func(index uint16, subIndex uint8, data []byte) error

type extension struct {
	object any
	read   StreamReader
	write  StreamWriter
}

// An Entry holds all parameters at one index.
// Single value entries keep their Variable at subindex 0.
type Entry struct {
	Index     uint16
	Name      string
	variables map[uint8]*Variable
	extension *extension
}

// SubIndex returns the variable at the given subindex
func (entry *Entry) SubIndex(subIndex uint8) (*Variable, error) {
	if entry == nil {
		return nil, iolink.ErrIndexNotAvailable
	}
	variable, ok := entry.variables[subIndex]
	if !ok {
		return nil, iolink.ErrSubindexNotAvail
	}
	return variable, nil
}

// SubCount returns the number of variables inside entry
func (entry *Entry) SubCount() int {
	return len(entry.variables)
}

// AddExtension installs read / write interceptors on an entry.
// Used for volatile parameters like the system command or the data
// storage object whose behaviour is not plain storage.
func (entry *Entry) AddExtension(object any, read StreamReader, write StreamWriter) {
	log.Debugf("[PARAM][EXTENSION][x%x] added extension to %v", entry.Index, entry.Name)
	entry.extension = &extension{object: object, read: read, write: write}
}

type stagedWrite struct {
	index    uint16
	subIndex uint8
	data     []byte
}

// Store is the parameter address space of the device
type Store struct {
	entries map[uint16]*Entry
	staged  []stagedWrite
}

func NewStore() *Store {
	return &Store{entries: make(map[uint16]*Entry)}
}

// Index returns the entry at the given index or nil
func (store *Store) Index(index uint16) *Entry {
	return store.entries[index]
}

// Indices returns all entry indices in ascending order
func (store *Store) Indices() []uint16 {
	indices := make([]uint16, 0, len(store.entries))
	for index := range store.entries {
		indices = append(indices, index)
	}
	slices.Sort(indices)
	return indices
}

// AddEntry creates an empty entry at index.
// Adding twice returns the existing entry.
func (store *Store) AddEntry(index uint16, name string) *Entry {
	entry, ok := store.entries[index]
	if ok {
		return entry
	}
	entry = &Entry{Index: index, Name: name, variables: make(map[uint8]*Variable)}
	store.entries[index] = entry
	log.Debugf("[PARAM] adding x%x | %v", index, name)
	return entry
}

// AddVariable creates a single value entry at index, subindex 0
func (store *Store) AddVariable(index uint16, name string, attribute Attribute, defaultValue []byte) *Entry {
	entry := store.AddEntry(index, name)
	entry.variables[0] = NewVariable(0, name, attribute, defaultValue)
	return entry
}

// AddSubVariable adds a variable to an existing entry
func (store *Store) AddSubVariable(index uint16, subIndex uint8, name string, attribute Attribute, defaultValue []byte) error {
	entry := store.entries[index]
	if entry == nil {
		return iolink.ErrIndexNotAvailable
	}
	entry.variables[subIndex] = NewVariable(subIndex, name, attribute, defaultValue)
	return nil
}

// Read performs an access right checked parameter read
func (store *Store) Read(index uint16, subIndex uint8) ([]byte, error) {
	entry, ok := store.entries[index]
	if !ok {
		return nil, iolink.ErrIndexNotAvailable
	}
	variable, err := entry.SubIndex(subIndex)
	if err != nil {
		return nil, err
	}
	if variable.Attribute&AttributeRead == 0 {
		return nil, iolink.ErrServiceNotAvail
	}
	value := variable.Value()
	if entry.extension != nil && entry.extension.read != nil {
		return entry.extension.read(index, subIndex, value)
	}
	return value, nil
}

// Write performs an access right and length checked parameter write
func (store *Store) Write(index uint16, subIndex uint8, data []byte) error {
	entry, ok := store.entries[index]
	if !ok {
		return iolink.ErrIndexNotAvailable
	}
	variable, err := entry.SubIndex(subIndex)
	if err != nil {
		return err
	}
	if variable.Attribute&AttributeWrite == 0 {
		return iolink.ErrIndexNotWritable
	}
	if err := variable.checkWrite(data); err != nil {
		return err
	}
	if entry.extension != nil && entry.extension.write != nil {
		if err := entry.extension.write(index, subIndex, data); err != nil {
			return err
		}
	}
	variable.set(data)
	return nil
}

// LocalWrite updates a parameter from the device application.
// Access rights restrict the master only, length checks still apply.
func (store *Store) LocalWrite(index uint16, subIndex uint8, data []byte) error {
	entry, ok := store.entries[index]
	if !ok {
		return iolink.ErrIndexNotAvailable
	}
	variable, err := entry.SubIndex(subIndex)
	if err != nil {
		return err
	}
	if err := variable.checkWrite(data); err != nil {
		return err
	}
	variable.set(data)
	return nil
}

// StageWrite validates a write and keeps it pending instead of storing.
// Used during block parameterization, where the set becomes effective
// only after a successful validity check.
func (store *Store) StageWrite(index uint16, subIndex uint8, data []byte) error {
	entry, ok := store.entries[index]
	if !ok {
		return iolink.ErrIndexNotAvailable
	}
	variable, err := entry.SubIndex(subIndex)
	if err != nil {
		return err
	}
	if variable.Attribute&AttributeWrite == 0 {
		return iolink.ErrIndexNotWritable
	}
	if err := variable.checkWrite(data); err != nil {
		return err
	}
	staged := make([]byte, len(data))
	copy(staged, data)
	store.staged = append(store.staged, stagedWrite{index: index, subIndex: subIndex, data: staged})
	return nil
}

// StagedCount returns the number of pending writes
func (store *Store) StagedCount() int {
	return len(store.staged)
}

// CommitStaged applies all pending writes in order
func (store *Store) CommitStaged() error {
	for _, write := range store.staged {
		if err := store.Write(write.index, write.subIndex, write.data); err != nil {
			store.staged = nil
			return err
		}
	}
	log.Debugf("[PARAM] committed %v staged writes", len(store.staged))
	store.staged = nil
	return nil
}

// DiscardStaged drops all pending writes
func (store *Store) DiscardStaged() {
	store.staged = nil
}

// DirectRead reads one octet from the direct parameter pages
func (store *Store) DirectRead(address uint8) (byte, error) {
	index, subIndex, err := PageLocation(address)
	if err != nil {
		return 0, err
	}
	value, err := store.Read(index, subIndex)
	if err != nil {
		return 0, err
	}
	if len(value) != 1 {
		return 0, iolink.ErrIllegalArgument
	}
	return value[0], nil
}

// DirectWrite writes one octet to the direct parameter pages
func (store *Store) DirectWrite(address uint8, value byte) error {
	index, subIndex, err := PageLocation(address)
	if err != nil {
		return err
	}
	return store.Write(index, subIndex, []byte{value})
}
