package frame

const checksumSeed uint8 = 0x52
const checksumMask uint8 = 0x3F

// Checksum6 computes the 6 bit frame checksum over data.
// All octets are xored together starting from the seed value, then the
// 8 bit intermediate result is folded down to 6 bits pairwise.
// The checksum bits of the control octet inside data must be cleared
// by the caller before calling this.
func Checksum6(data []byte) uint8 {
	d := checksumSeed
	for _, b := range data {
		d ^= b
	}
	bit := func(n uint8) uint8 { return d >> n & 0x01 }
	var cks uint8
	cks |= (bit(1) ^ bit(0)) << 0
	cks |= (bit(3) ^ bit(2)) << 1
	cks |= (bit(5) ^ bit(4)) << 2
	cks |= (bit(7) ^ bit(6)) << 3
	cks |= (bit(6) ^ bit(4) ^ bit(2) ^ bit(0)) << 4
	cks |= (bit(7) ^ bit(5) ^ bit(3) ^ bit(1)) << 5
	return cks
}

// VerifyMaster checks the checksum of a received master frame.
// The checksum bits inside the CKT octet are cleared in place before
// recomputing, then restored.
func VerifyMaster(data []byte) bool {
	if len(data) < HeaderSize {
		return false
	}
	ckt := CKT(data[1])
	received := ckt.Checksum()
	data[1] = uint8(NewCKT(ckt.Type(), 0))
	computed := Checksum6(data)
	data[1] = uint8(ckt)
	return computed == received
}

// sealDevice computes the device frame checksum and merges it into the
// CKS octet at cksIndex. The event flag and PD status bits must already
// be set, the checksum bits must be zero.
func sealDevice(data []byte, cksIndex int) {
	cks := CKS(data[cksIndex])
	data[cksIndex] = uint8(NewCKS(cks.EventFlag(), cks.PDStatus(), 0))
	checksum := Checksum6(data)
	data[cksIndex] = uint8(NewCKS(cks.EventFlag(), cks.PDStatus(), checksum))
}
