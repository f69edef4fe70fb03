package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, ADD.Size())
	assert.Equal(t, 2, POP.Size())
	assert.Equal(t, 3, LOADCONST.Size())
	assert.Equal(t, 3, INCLOCAL.Size())
	assert.Equal(t, 3, CALL.Size())
	assert.Equal(t, 4, NEXT.Size())
	assert.Equal(t, 4, INCGLOBAL.Size())
}

func TestU16RoundTrip(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 4)
	PutU16(buf, 1, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), U16(buf, 1))
	assert.Equal(t, byte(0xEF), buf[1])
	assert.Equal(t, byte(0xBE), buf[2])
}

func TestBias(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint8(129), Bias(1))
	assert.Equal(t, uint8(127), Bias(-1))
	assert.Equal(t, 1, Delta(129))
	assert.Equal(t, -1, Delta(127))
	assert.Equal(t, 0, Delta(Bias(0)))
}

func TestToString(t *testing.T) {
	t.Parallel()
	code := []byte{byte(LOADCONST), 0x01, 0x00, byte(ADD), byte(CALL), 2, 1}
	str, next := ToString(code, 0)
	assert.Contains(t, str, "LOADCONST")
	assert.Contains(t, str, "1")
	assert.Equal(t, 3, next)
	str, next = ToString(code, next)
	assert.Contains(t, str, "ADD")
	assert.Equal(t, 4, next)
	str, next = ToString(code, next)
	assert.Contains(t, str, "CALL")
	assert.Equal(t, 7, next)
}
