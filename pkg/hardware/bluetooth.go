package hardware

import "sync"

// A2dpEvent is one lifecycle/streaming transition reported by the A2DP
// sink profile.
type A2dpEvent int

const (
	A2dpInitialized A2dpEvent = iota
	A2dpDeinitialized
	A2dpConnected
	A2dpDisconnected
	A2dpAudioStarted
	A2dpAudioSuspended
	A2dpAudioStopped
)

// AvrccNotification is one AVRCP notification kind the controller can be
// asked to register for. The backend maps these to its own wire ids
// (playback position = 1, playback = 2, track changed = 3; the batched
// metadata request is id 4).
type AvrccNotification int

const (
	NotifyPlaybackPosition AvrccNotification = iota
	NotifyPlayback
	NotifyTrackChanged
)

// AvrccPlaybackState is the playback state carried by a NotifyPlayback
// notification.
type AvrccPlaybackState int

const (
	PlaybackStopped AvrccPlaybackState = iota
	PlaybackPlaying
	PlaybackPaused
)

// AvrccNotificationEvent is one registered notification firing. Playback is
// meaningful for NotifyPlayback, PositionMs for NotifyPlaybackPosition.
type AvrccNotificationEvent struct {
	Kind       AvrccNotification
	Playback   AvrccPlaybackState
	PositionMs uint32
}

// AvrccMetadataField is one attribute of the batched metadata request.
type AvrccMetadataField int

const (
	MetaTitle AvrccMetadataField = iota
	MetaArtist
	MetaAlbum
	MetaPlayingTime
)

// AvrccPassthroughKey is one of the transport-control keys the command
// mediator can send.
type AvrccPassthroughKey int

const (
	KeyPause AvrccPassthroughKey = iota
	KeyPlay
	KeyChannelUp
	KeyChannelDown
)

// HfpConnectionState mirrors the HFP profile's own connect/disconnect
// state machine, reported independently of the call-setup state below.
type HfpConnectionState int

const (
	HfpDisconnected HfpConnectionState = iota
	HfpConnected
)

// HfpCallSetupState is the HFP "+CIEV" call-setup indicator.
type HfpCallSetupState int

const (
	CallSetupNone HfpCallSetupState = iota
	CallSetupIncoming
	CallSetupOutgoing
	CallSetupAlerting
)

// BluetoothStack aggregates the GAP/AVRCC/A2DP-sink/HFP-client surface the
// bluetooth service drives. Initialize brings the whole stack up with the
// device class set to AudioVideo (audio + telephony), SSP I/O capability
// None, and the given legacy PIN. Event callbacks are registered once per
// enabled run; the real backend invokes them from its own ISR-like driver
// contexts, the mock invokes them synchronously from test code.
type BluetoothStack interface {
	Initialize(deviceName, pin string, discoverable bool) error
	Close() error

	OnA2dp(func(A2dpEvent))
	OnA2dpSinkData(func(data []byte))

	OnAvrccConnected(func())
	OnAvrccNotification(func(AvrccNotificationEvent))
	OnAvrccMetadata(func(field AvrccMetadataField, value string))
	RegisterAvrccNotification(n AvrccNotification, intervalMs int) error
	RequestAvrccMetadata(fields ...AvrccMetadataField) error
	AvrccPassthrough(key AvrccPassthroughKey) error

	OnHfpConnectionState(func(HfpConnectionState))
	OnHfpAudioState(func(streaming bool))
	OnHfpCallSetupState(func(HfpCallSetupState))
	OnHfpCallState(func(active bool))
	OnHfpRecvData(func(data []byte))
	// OnHfpSendData registers the fill callback the stack invokes when it
	// wants outgoing voice samples: the handler copies up to len(out) bytes
	// into out and returns the count.
	OnHfpSendData(func(out []byte) int)
	// RequestOutgoingDataReady tells the stack outgoing voice data is
	// waiting, prompting it to start (or keep) pulling via the send
	// callback.
	RequestOutgoingDataReady() error

	RequestCurrentCalls() error
	Answer() error
	Reject() error
	Hangup() error
}

// MockBluetoothStack is an in-memory BluetoothStack for tests: Fire*
// methods invoke the registered callbacks synchronously, and every outbound
// command is recorded for assertions instead of reaching real hardware.
// Safe for concurrent use; the service under test issues commands from its
// own goroutines.
type MockBluetoothStack struct {
	mu sync.Mutex

	deviceName   string
	pin          string
	discoverable bool
	closed       bool

	a2dpHandler        func(A2dpEvent)
	a2dpDataHandler    func([]byte)
	avrccConnHandler   func()
	avrccNotifyHandler func(AvrccNotificationEvent)
	avrccMetaHandler   func(AvrccMetadataField, string)
	hfpConnHandler     func(HfpConnectionState)
	hfpAudioHandler    func(bool)
	hfpSetupHandler    func(HfpCallSetupState)
	hfpCallHandler     func(bool)
	hfpRecvHandler     func([]byte)
	hfpSendHandler     func([]byte) int

	registeredNotifications map[AvrccNotification]int
	requestedMetadata       []AvrccMetadataField
	passthroughSent         []AvrccPassthroughKey
	answered, rejected      bool
	hungUp                  bool
	currentCallsRequests    int
	outgoingReadyRequests   int
}

func NewMockBluetoothStack() *MockBluetoothStack {
	return &MockBluetoothStack{registeredNotifications: map[AvrccNotification]int{}}
}

func (m *MockBluetoothStack) Initialize(deviceName, pin string, discoverable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceName, m.pin, m.discoverable = deviceName, pin, discoverable
	return nil
}

func (m *MockBluetoothStack) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockBluetoothStack) OnA2dp(f func(A2dpEvent)) { m.withLock(func() { m.a2dpHandler = f }) }
func (m *MockBluetoothStack) OnA2dpSinkData(f func([]byte)) {
	m.withLock(func() { m.a2dpDataHandler = f })
}
func (m *MockBluetoothStack) OnAvrccConnected(f func()) {
	m.withLock(func() { m.avrccConnHandler = f })
}
func (m *MockBluetoothStack) OnAvrccNotification(f func(AvrccNotificationEvent)) {
	m.withLock(func() { m.avrccNotifyHandler = f })
}
func (m *MockBluetoothStack) OnAvrccMetadata(f func(AvrccMetadataField, string)) {
	m.withLock(func() { m.avrccMetaHandler = f })
}
func (m *MockBluetoothStack) OnHfpConnectionState(f func(HfpConnectionState)) {
	m.withLock(func() { m.hfpConnHandler = f })
}
func (m *MockBluetoothStack) OnHfpAudioState(f func(bool)) {
	m.withLock(func() { m.hfpAudioHandler = f })
}
func (m *MockBluetoothStack) OnHfpCallSetupState(f func(HfpCallSetupState)) {
	m.withLock(func() { m.hfpSetupHandler = f })
}
func (m *MockBluetoothStack) OnHfpCallState(f func(bool)) {
	m.withLock(func() { m.hfpCallHandler = f })
}
func (m *MockBluetoothStack) OnHfpRecvData(f func([]byte)) {
	m.withLock(func() { m.hfpRecvHandler = f })
}
func (m *MockBluetoothStack) OnHfpSendData(f func([]byte) int) {
	m.withLock(func() { m.hfpSendHandler = f })
}

func (m *MockBluetoothStack) withLock(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f()
}

func (m *MockBluetoothStack) RegisterAvrccNotification(n AvrccNotification, intervalMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registeredNotifications[n] = intervalMs
	return nil
}

func (m *MockBluetoothStack) RequestAvrccMetadata(fields ...AvrccMetadataField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestedMetadata = append(m.requestedMetadata, fields...)
	return nil
}

func (m *MockBluetoothStack) AvrccPassthrough(key AvrccPassthroughKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passthroughSent = append(m.passthroughSent, key)
	return nil
}

func (m *MockBluetoothStack) RequestOutgoingDataReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outgoingReadyRequests++
	return nil
}

func (m *MockBluetoothStack) RequestCurrentCalls() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentCallsRequests++
	return nil
}

func (m *MockBluetoothStack) Answer() error { m.withLock(func() { m.answered = true }); return nil }
func (m *MockBluetoothStack) Reject() error { m.withLock(func() { m.rejected = true }); return nil }
func (m *MockBluetoothStack) Hangup() error { m.withLock(func() { m.hungUp = true }); return nil }

// Accessors for test assertions.

func (m *MockBluetoothStack) Identity() (name, pin string, discoverable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceName, m.pin, m.discoverable
}

func (m *MockBluetoothStack) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockBluetoothStack) RegisteredNotifications() map[AvrccNotification]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[AvrccNotification]int, len(m.registeredNotifications))
	for k, v := range m.registeredNotifications {
		out[k] = v
	}
	return out
}

func (m *MockBluetoothStack) RequestedMetadata() []AvrccMetadataField {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AvrccMetadataField(nil), m.requestedMetadata...)
}

func (m *MockBluetoothStack) PassthroughSent() []AvrccPassthroughKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AvrccPassthroughKey(nil), m.passthroughSent...)
}

func (m *MockBluetoothStack) Answered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answered
}

func (m *MockBluetoothStack) Rejected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected
}

func (m *MockBluetoothStack) HungUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hungUp
}

func (m *MockBluetoothStack) CurrentCallsRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCallsRequests
}

func (m *MockBluetoothStack) OutgoingReadyRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outgoingReadyRequests
}

// Fire* methods let tests drive the registered callbacks as if the real
// stack's driver context had invoked them.

func (m *MockBluetoothStack) handler(get func() interface{}) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return get()
}

func (m *MockBluetoothStack) FireA2dp(e A2dpEvent) {
	if h, _ := m.handler(func() interface{} { return m.a2dpHandler }).(func(A2dpEvent)); h != nil {
		h(e)
	}
}

func (m *MockBluetoothStack) FireA2dpSinkData(data []byte) {
	if h, _ := m.handler(func() interface{} { return m.a2dpDataHandler }).(func([]byte)); h != nil {
		h(data)
	}
}

func (m *MockBluetoothStack) FireAvrccConnected() {
	if h, _ := m.handler(func() interface{} { return m.avrccConnHandler }).(func()); h != nil {
		h()
	}
}

func (m *MockBluetoothStack) FireAvrccNotification(e AvrccNotificationEvent) {
	if h, _ := m.handler(func() interface{} { return m.avrccNotifyHandler }).(func(AvrccNotificationEvent)); h != nil {
		h(e)
	}
}

func (m *MockBluetoothStack) FireAvrccMetadata(field AvrccMetadataField, value string) {
	if h, _ := m.handler(func() interface{} { return m.avrccMetaHandler }).(func(AvrccMetadataField, string)); h != nil {
		h(field, value)
	}
}

func (m *MockBluetoothStack) FireHfpConnectionState(s HfpConnectionState) {
	if h, _ := m.handler(func() interface{} { return m.hfpConnHandler }).(func(HfpConnectionState)); h != nil {
		h(s)
	}
}

func (m *MockBluetoothStack) FireHfpAudioState(streaming bool) {
	if h, _ := m.handler(func() interface{} { return m.hfpAudioHandler }).(func(bool)); h != nil {
		h(streaming)
	}
}

func (m *MockBluetoothStack) FireHfpCallSetupState(s HfpCallSetupState) {
	if h, _ := m.handler(func() interface{} { return m.hfpSetupHandler }).(func(HfpCallSetupState)); h != nil {
		h(s)
	}
}

func (m *MockBluetoothStack) FireHfpCallState(active bool) {
	if h, _ := m.handler(func() interface{} { return m.hfpCallHandler }).(func(bool)); h != nil {
		h(active)
	}
}

func (m *MockBluetoothStack) FireHfpRecvData(data []byte) {
	if h, _ := m.handler(func() interface{} { return m.hfpRecvHandler }).(func([]byte)); h != nil {
		h(data)
	}
}

// FireHfpSendData pulls up to n bytes through the registered send callback,
// as the real stack does when it has a frame slot to fill.
func (m *MockBluetoothStack) FireHfpSendData(n int) []byte {
	h, _ := m.handler(func() interface{} { return m.hfpSendHandler }).(func([]byte) int)
	if h == nil {
		return nil
	}
	buf := make([]byte, n)
	got := h(buf)
	return buf[:got]
}
