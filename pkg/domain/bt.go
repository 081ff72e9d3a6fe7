// Package domain holds the plain value types shared across the bus: phone
// and audio state machines, track/call metadata records, steering-wheel
// button sets, and the head-unit-facing radio/display state.
package domain

// BtState is the coarse bluetooth-link connection state.
type BtState int

const (
	BtUninitialized BtState = iota
	BtInitialized
	BtPaired
	BtConnected
)

// IsConnected reports whether the link has completed pairing and connected.
func (s BtState) IsConnected() bool { return s == BtConnected }

// AudioState is the A2DP/HFP profile's connection/streaming state, reused
// for both the music (A2DP) and voice (HFP) sides.
type AudioState int

const (
	AudioUninitialized AudioState = iota
	AudioInitialized
	AudioConnected
	AudioStreaming
	AudioSuspended
)

// IsConnected reports whether the profile has at least reached Connected.
func (s AudioState) IsConnected() bool {
	return s == AudioConnected || s == AudioStreaming || s == AudioSuspended
}

// IsActive reports whether audio is actively flowing (streaming) or poised
// to (suspended, i.e. a call has temporarily paused music).
func (s AudioState) IsActive() bool {
	return s == AudioStreaming || s == AudioSuspended
}

// AudioTrackState is the AVRCC-reported playback state of the current
// track.
type AudioTrackState int

const (
	TrackUninitialized AudioTrackState = iota
	TrackInitialized
	TrackConnected
	TrackPlaying
	TrackPaused
)

// TrackInfo is the current track's metadata, versioned so display
// formatters can dedupe redundant AVRCC notifications.
type TrackInfo struct {
	Version  uint32
	State    AudioTrackState
	Artist   string
	Album    string
	Song     string
	Offset   uint32
	Duration uint32
	Paused   bool
}

// Reset clears every field except Version, which the caller bumps
// separately so consumers observe the reset as a distinct state.
func (t *TrackInfo) Reset() {
	version := t.Version
	*t = TrackInfo{Version: version}
}

// IsConnected reports whether a track session exists (even if paused).
func (t *TrackInfo) IsConnected() bool {
	return t.State == TrackConnected || t.State == TrackPlaying || t.State == TrackPaused
}

// PhoneCallState is the HFP call-setup/call-active state machine.
type PhoneCallState int

const (
	CallIdle PhoneCallState = iota
	CallDialing
	CallDialingAlerting
	CallRinging
	CallActive
)

// IsActive reports whether a call is ringing, dialing, or active -- i.e.
// any state other than idle.
func (s PhoneCallState) IsActive() bool {
	return s != CallIdle
}

// PhoneCallInfo is the current call's metadata.
type PhoneCallInfo struct {
	Version  uint32
	State    PhoneCallState
	Phone    string
	Duration uint32
}

// Reset clears every field except Version.
func (c *PhoneCallInfo) Reset() {
	version := c.Version
	*c = PhoneCallInfo{Version: version}
}

// BtCommand is a transport-layer command the command mediator can issue
// against the bluetooth service's HFP/AVRCC handles.
type BtCommand int

const (
	CmdAnswer BtCommand = iota
	CmdReject
	CmdHangup
	CmdPause
	CmdResume
	CmdNextTrack
	CmdPreviousTrack
)
