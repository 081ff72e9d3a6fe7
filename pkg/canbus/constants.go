// Package canbus implements the vehicle-bus wire codec: the extended frame
// identifier layout, the fixed publisher/topic constant table, and the
// 6-bit-per-character text codec used by the display and radio-station
// topics. The bus itself is an extended-frame CAN-like link; the controller
// silicon driver is out of scope (see Transport).
package canbus

// Publisher identifies the originating ECU on the bus.
type Publisher uint16

const (
	PublisherBodyComputer    Publisher = 0x4000
	PublisherInstrumentPanel Publisher = 0x4003
	PublisherRadio           Publisher = 0x4005
	PublisherParkingSensors  Publisher = 0x4018
	PublisherBt              Publisher = 0x4021
)

func (p Publisher) String() string {
	switch p {
	case PublisherBodyComputer:
		return "body_computer"
	case PublisherInstrumentPanel:
		return "instrument_panel"
	case PublisherRadio:
		return "radio"
	case PublisherParkingSensors:
		return "parking_sensors"
	case PublisherBt:
		return "bt"
	default:
		return "unknown"
	}
}

// topicID identifies the message's semantic type.
type topicID uint16

const (
	topicUnitsStatus   topicID = 0x0e09
	topicProxi         topicID = 0x1e11
	topicSteeringWheel topicID = 0x0635
	topicDateTime      topicID = 0x0c21
	topicDisplay       topicID = 0x0a39
	topicBt            topicID = 0x0631
	topicRadioStation  topicID = 0x0a19
	topicRadioSource   topicID = 0x0a11
)

// GetID packs a topic and publisher into the 32-bit extended frame
// identifier: (topic << 16) | publisher.
func GetID(topic uint16, publisher uint16) uint32 {
	return uint32(topic)<<16 | uint32(publisher)
}

// GetTopic extracts the topic half of an extended frame identifier.
func GetTopic(id uint32) uint16 {
	return uint16(id >> 16)
}

// GetPublisher extracts the publisher half of an extended frame identifier.
func GetPublisher(id uint32) uint16 {
	return uint16(id & 0xffff)
}
