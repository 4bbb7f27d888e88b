package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfile = []byte(`
; vendor parameters
[0040]
ParameterName=SetPoint
AccessType=rw
Length=2
DefaultValue=0x1234

[0041]
ParameterName=Limits
SubNumber=2

[0041sub1]
ParameterName=LowerLimit
AccessType=rw
Length=1
DefaultValue=0x05

[0041sub2]
ParameterName=UpperLimit
AccessType=ro
Length=1
DefaultValue=0xF0
`)

func TestParseProfile(t *testing.T) {
	store := NewStore()
	require.Nil(t, Parse(store, testProfile))

	value, err := store.Read(0x0040, 0)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, value)

	entry := store.Index(0x0041)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.SubCount())

	value, err = store.Read(0x0041, 1)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x05}, value)

	value, err = store.Read(0x0041, 2)
	require.Nil(t, err)
	assert.Equal(t, []byte{0xF0}, value)
	assert.NotNil(t, store.Write(0x0041, 2, []byte{0x00}))
}

func TestParseProfileBadAccess(t *testing.T) {
	store := NewStore()
	err := Parse(store, []byte("[0040]\nParameterName=X\nAccessType=zz\n"))
	assert.NotNil(t, err)
}

func TestParseProfileMissingName(t *testing.T) {
	store := NewStore()
	err := Parse(store, []byte("[0040]\nAccessType=rw\n"))
	assert.NotNil(t, err)
}
