package param

import (
	iolink "github.com/Raghava-Ch/goiolink"
)

// A Variable is a single parameter value at a given subindex.
// Length is fixed at creation, writes must match it exactly.
type Variable struct {
	Name      string
	SubIndex  uint8
	Attribute Attribute
	data      []byte
}

func NewVariable(subIndex uint8, name string, attribute Attribute, defaultValue []byte) *Variable {
	data := make([]byte, len(defaultValue))
	copy(data, defaultValue)
	return &Variable{Name: name, SubIndex: subIndex, Attribute: attribute, data: data}
}

// Len returns the fixed length of the parameter in octets
func (v *Variable) Len() int {
	return len(v.data)
}

// Value returns a copy of the stored value
func (v *Variable) Value() []byte {
	data := make([]byte, len(v.data))
	copy(data, v.data)
	return data
}

// checkWrite validates length against the fixed parameter size
func (v *Variable) checkWrite(data []byte) error {
	if len(data) > len(v.data) {
		return iolink.ErrValueLenOverrun
	}
	if len(data) < len(v.data) {
		return iolink.ErrValueLenUnderrun
	}
	return nil
}

func (v *Variable) set(data []byte) {
	copy(v.data, data)
}
