package canbus

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func payloadFromU64(v uint64) [8]byte {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], v)
	return p
}

func u64FromPayload(p [8]byte) uint64 {
	return binary.BigEndian.Uint64(p[:])
}

func TestDecodeDisplayText(t *testing.T) {
	cases := []struct {
		payload uint64
		want    string
	}{
		{0x101A8177D4610A0E, "ULTIME "},
		{0x111A4D43182E8000, "HIAM. "},
	}
	for _, c := range cases {
		got := decodeDisplayText(payloadFromU64(c.payload))
		assert.Equal(t, c.want, got)
	}
}

func TestEncodeDisplayTextZero(t *testing.T) {
	p := encodeDisplayText("0")
	assert.Equal(t, uint64(0x0000040000000000), u64FromPayload(p))
	assert.Equal(t, "0", decodeDisplayText(p))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	text := decodeDisplayText(payloadFromU64(0x101A8177D4610A0E))
	p := encodeDisplayText(text)
	assert.Equal(t, uint64(0x00008177D4610A00), u64FromPayload(p))
}
