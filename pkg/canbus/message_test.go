package canbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBodyComputer(t *testing.T) {
	id := GetID(uint16(topicUnitsStatus), uint16(PublisherBodyComputer))
	f := Decode(id, []byte{0x00, 0x1c, 0x00, 0x00, 0x00, 0x01})
	require.Equal(t, KindBodyComputer, f.Topic.Kind)
	assert.Equal(t, WakeupRequest, f.Topic.BodyComputer)
	assert.Equal(t, PublisherBodyComputer, f.Publisher)
}

func TestEncodeDecodeBodyComputerRoundTrip(t *testing.T) {
	f := Frame{Publisher: PublisherBodyComputer, Topic: Topic{Kind: KindBodyComputer, BodyComputer: ShutDownRequest}}
	id, payload := Encode(f)
	got := Decode(id, payload)
	assert.Equal(t, ShutDownRequest, got.Topic.BodyComputer)
}

func TestDecodeProxi(t *testing.T) {
	id := GetID(uint16(topicProxi), uint16(PublisherParkingSensors))
	req := Decode(id, nil)
	assert.True(t, req.Topic.Proxi.IsRequest)

	resp := Decode(id, []byte{1, 2, 3, 4, 5, 6})
	assert.False(t, resp.Topic.Proxi.IsRequest)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, resp.Topic.Proxi.Response)
}

func TestDecodeSteeringWheel(t *testing.T) {
	id := GetID(uint16(topicSteeringWheel), uint16(PublisherInstrumentPanel))
	f := Decode(id, []byte{0x00, 0x04})
	require.Equal(t, KindSteeringWheel, f.Topic.Kind)
	assert.EqualValues(t, 4, f.Topic.SteeringWheel.Buttons)
}

func TestDecodeBtSinkMode(t *testing.T) {
	id := GetID(uint16(topicBt), uint16(PublisherBt))
	f := Decode(id, []byte{0, 0, 0, 0, 0, 0, 0, 0x82})
	assert.Equal(t, BtVoice, f.Topic.Bt)

	eid, payload := Encode(Frame{Publisher: PublisherBt, Topic: Topic{Kind: KindBt, Bt: BtMedia}})
	assert.Equal(t, id, eid)
	assert.Equal(t, byte(0x84), payload[7])
}

func TestDecodeRadioSourceFmAsymmetry(t *testing.T) {
	id := GetID(uint16(topicRadioSource), uint16(PublisherRadio))

	playing := Decode(id, []byte{0xe3, 0x00, 0x00, 0x00, 0x02, 0x00})
	assert.True(t, playing.Topic.RadioSource.BtPlaying)

	fm := Decode(id, []byte{0x00, 0x00, 0x03, 0xe8, 0x00, 0x00})
	assert.True(t, fm.Topic.RadioSource.IsFm)
	assert.EqualValues(t, 0x03e8, fm.Topic.RadioSource.FmFreq)

	_, payload := Encode(Frame{Publisher: PublisherRadio, Topic: Topic{Kind: KindRadioSource, RadioSource: fm.Topic.RadioSource}})
	assert.Len(t, payload, 4, "encode only ever emits the short FM form")
}

func TestDecodeUnknownTopicPreservesPayload(t *testing.T) {
	id := GetID(0xbeef, uint16(PublisherRadio))
	f := Decode(id, []byte{1, 2, 3})
	require.Equal(t, KindUnknown, f.Topic.Kind)
	assert.EqualValues(t, 0xbeef, f.Topic.UnknownTopic)
	assert.Equal(t, []byte{1, 2, 3}, f.Topic.UnknownPayload)

	eid, payload := Encode(f)
	assert.Equal(t, id, eid)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestDecodeDisplayChunk(t *testing.T) {
	id := GetID(uint16(topicDisplay), uint16(PublisherRadio))
	chunk, ok := decodeDisplay([]byte{0x20, 0x2a, 0, 0, 0, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, 3, chunk.TotalChunks)
	assert.Equal(t, 0, chunk.ChunkIndex)
	assert.True(t, chunk.Radio)

	f := Decode(id, []byte{0x20, 0x2a, 0, 0, 0, 0, 0, 0})
	assert.Equal(t, KindDisplay, f.Topic.Kind)
}
