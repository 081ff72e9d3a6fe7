package canbus

import "context"

// Transport is the physical vehicle-bus link: something that can send and
// receive whole (id, payload) frames. Real hardware is driven by
// SerialTransport; tests and the mock backend use an in-memory transport.
type Transport interface {
	Send(id uint32, payload []byte) error
	Recv(ctx context.Context) (id uint32, payload []byte, err error)
	Close() error
}

// MockTransport is an in-memory Transport for tests: frames written with
// Inject are delivered to Recv, and frames handed to Send are captured for
// assertions rather than going anywhere.
type MockTransport struct {
	incoming chan frameOnWire
	sent     chan frameOnWire
	closed   chan struct{}
}

type frameOnWire struct {
	id      uint32
	payload []byte
}

// NewMockTransport returns a ready-to-use MockTransport. Both channels are
// generously buffered since tests typically inject a handful of frames
// up front and then read the service's reactions.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		incoming: make(chan frameOnWire, 64),
		sent:     make(chan frameOnWire, 64),
		closed:   make(chan struct{}),
	}
}

// Inject queues a frame as if it had arrived over the wire.
func (m *MockTransport) Inject(id uint32, payload []byte) {
	select {
	case m.incoming <- frameOnWire{id, payload}:
	case <-m.closed:
	}
}

func (m *MockTransport) Send(id uint32, payload []byte) error {
	select {
	case m.sent <- frameOnWire{id, payload}:
		return nil
	case <-m.closed:
		return context.Canceled
	}
}

// SentFrame blocks for the next frame the code under test sent, or returns
// ok=false if the transport was closed first.
func (m *MockTransport) SentFrame() (id uint32, payload []byte, ok bool) {
	select {
	case f := <-m.sent:
		return f.id, f.payload, true
	case <-m.closed:
		return 0, nil, false
	}
}

func (m *MockTransport) Recv(ctx context.Context) (uint32, []byte, error) {
	select {
	case f := <-m.incoming:
		return f.id, f.payload, nil
	case <-m.closed:
		return 0, nil, context.Canceled
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (m *MockTransport) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}
