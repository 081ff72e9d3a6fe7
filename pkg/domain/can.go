package domain

import "fmt"

// RadioState is the head unit's currently-selected audio source, as
// observed from the vehicle-bus RadioSource topic.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioFm
	RadioBtActive
	RadioBtMuted
)

// IsBtActive reports whether the head unit currently has the phone's audio
// source selected (playing or muted, as opposed to FM or unknown).
func (s RadioState) IsBtActive() bool {
	return s == RadioBtActive || s == RadioBtMuted
}

// SteeringWheelButton is one bit of the steering-wheel button bitmap.
type SteeringWheelButton uint16

const (
	ButtonWindows    SteeringWheelButton = 1 << 7
	ButtonMenu       SteeringWheelButton = 1 << 8
	ButtonSrc        SteeringWheelButton = 1 << 10
	ButtonDown       SteeringWheelButton = 1 << 11
	ButtonUp         SteeringWheelButton = 1 << 12
	ButtonMute       SteeringWheelButton = 1 << 13
	ButtonVolumeDown SteeringWheelButton = 1 << 14
	ButtonVolumeUp   SteeringWheelButton = 1 << 15
)

// ButtonSet is a bitmap of currently (or previously) pressed buttons,
// decoded directly from the steering-wheel topic's 2-byte payload.
type ButtonSet uint16

func (b ButtonSet) Contains(btn SteeringWheelButton) bool {
	return b&ButtonSet(btn) != 0
}

func (b ButtonSet) Intersect(o ButtonSet) ButtonSet { return b & o }
func (b ButtonSet) Union(o ButtonSet) ButtonSet     { return b | o }

// DisplayText is the stateful record backing the radio/cockpit display
// signals: a bounded string, a menu flag, and a version bumped on every
// formatted update.
type DisplayText struct {
	Version uint32
	Menu    bool
	Text    string
}

// Reset clears Text and Menu but preserves Version (the caller bumps it
// separately so watchers observe the reset as a distinct update).
func (d *DisplayText) Reset() {
	version := d.Version
	*d = DisplayText{Version: version}
}

// UpdatePhoneInfo formats call metadata as "<phone> <mm>:<ss>" into Text.
func (d *DisplayText) UpdatePhoneInfo(call PhoneCallInfo) {
	mm := call.Duration / 60
	ss := call.Duration % 60
	d.Text = fmt.Sprintf("%s %02d:%02d", call.Phone, mm, ss)
}

// UpdateTrackInfo formats track metadata as "<album>;<artist>;<mm>:<ss>"
// into Text.
func (d *DisplayText) UpdateTrackInfo(track TrackInfo) {
	mm := track.Duration / 60
	ss := track.Duration % 60
	d.Text = fmt.Sprintf("%s;%s;%02d:%02d", track.Album, track.Artist, mm, ss)
}
