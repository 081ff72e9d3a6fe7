package hardware

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// WifiNetwork is one scan result.
type WifiNetwork struct {
	SSID    string
	Open    bool
	RssiDbm int
}

// WifiStation is the OTA updater's join/scan surface.
type WifiStation interface {
	Scan(ctx context.Context, timeout time.Duration) ([]WifiNetwork, error)
	Join(ctx context.Context, ssid string) error
	Leave() error
}

// MockWifiStation is an in-memory WifiStation for tests. Safe for
// concurrent use, since the service under test joins from its own
// goroutine.
type MockWifiStation struct {
	mu       sync.Mutex
	Networks []WifiNetwork
	joined   string
	left     bool
}

func (m *MockWifiStation) Scan(ctx context.Context, timeout time.Duration) ([]WifiNetwork, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WifiNetwork(nil), m.Networks...), nil
}

func (m *MockWifiStation) Join(ctx context.Context, ssid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined = ssid
	return nil
}

func (m *MockWifiStation) Leave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = true
	return nil
}

func (m *MockWifiStation) JoinedSSID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

func (m *MockWifiStation) HasLeft() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.left
}

// StrongestOpen returns the open network with the highest RSSI, or false if
// none is open.
func StrongestOpen(networks []WifiNetwork) (WifiNetwork, bool) {
	var best WifiNetwork
	found := false
	for _, n := range networks {
		if !n.Open {
			continue
		}
		if !found || n.RssiDbm > best.RssiDbm {
			best = n
			found = true
		}
	}
	return best, found
}

// FirmwareHeader is the image's own self-description, parsed from the
// first bytes of the HTTP body.
type FirmwareHeader struct {
	Version uint32
	Size    uint32
}

// FirmwarePuller fetches a firmware image over HTTP and exposes its header
// and body stream.
type FirmwarePuller interface {
	Fetch(ctx context.Context, url string) (FirmwareHeader, io.ReadCloser, error)
}

// HttpFirmwarePuller is the real backend: plain HTTPS GET against the
// global CA store. Fetch reads the 8-byte big-endian version/size header
// and returns the rest of the response body unread; it does not split the
// image into fixed-size frames.
type HttpFirmwarePuller struct {
	Client *http.Client
}

func NewHttpFirmwarePuller() *HttpFirmwarePuller {
	return &HttpFirmwarePuller{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (p *HttpFirmwarePuller) Fetch(ctx context.Context, url string) (FirmwareHeader, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FirmwareHeader{}, nil, errors.Wrap(err, "build firmware request")
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return FirmwareHeader{}, nil, errors.Wrap(err, "fetch firmware image")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return FirmwareHeader{}, nil, errors.Errorf("firmware fetch: unexpected status %d", resp.StatusCode)
	}

	header := make([]byte, 8)
	if _, err := io.ReadFull(resp.Body, header); err != nil {
		resp.Body.Close()
		return FirmwareHeader{}, nil, errors.Wrap(err, "read firmware header")
	}
	hdr := FirmwareHeader{
		Version: beUint32(header[0:4]),
		Size:    beUint32(header[4:8]),
	}
	return hdr, resp.Body, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// FlashSlot is the dual-slot write/commit target for an OTA image.
type FlashSlot interface {
	Write(ctx context.Context, r io.Reader, size uint32) error
	Commit() error
}

// MockFlashSlot records writes and commits for tests. Safe for concurrent
// use.
type MockFlashSlot struct {
	mu        sync.Mutex
	written   []byte
	committed bool
}

func (s *MockFlashSlot) Write(ctx context.Context, r io.Reader, size uint32) error {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, "write flash slot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = buf
	return nil
}

func (s *MockFlashSlot) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = true
	return nil
}

func (s *MockFlashSlot) WrittenImage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}

func (s *MockFlashSlot) IsCommitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}
