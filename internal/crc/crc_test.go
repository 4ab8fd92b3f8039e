package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCCITT(t *testing.T) {
	assert.Equal(t, uint16(0x31C3), CCITT([]byte("123456789")))
}

func TestCCITTReflected(t *testing.T) {
	assert.Equal(t, uint16(0x906E), CCITTReflected([]byte("123456789")))
}

func TestIBM(t *testing.T) {
	// CRC-16/MODBUS check value for "123456789" is 0x4B37.
	assert.Equal(t, uint16(0x4B37), IBM([]byte("123456789")))
}

func TestAddSum8(t *testing.T) {
	assert.Equal(t, byte(0x06), AddSum8([]byte{1, 2, 3}))
}

func TestXOR8(t *testing.T) {
	assert.Equal(t, byte(0), XOR8([]byte{0x0F, 0x0F}))
	assert.Equal(t, byte(0x0F), XOR8([]byte{0x00, 0x0F}))
}

func TestLE16RoundTrip(t *testing.T) {
	le := LE16(0xABCD)
	assert.Equal(t, uint16(0xABCD), ReadLE16(le[:]))
}
