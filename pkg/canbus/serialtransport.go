package canbus

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/daedaluz/goserial"
	"github.com/pkg/errors"
	"github.com/sigurn/crc8"
)

// wire framing: 0xAA sync byte, 4-byte BE extended id, 1-byte payload
// length, payload, 1-byte CRC8 over id||len||payload. There is no physical
// CAN controller on this board; the vehicle bus is bridged over a UART, so
// framing and error detection that a real CAN controller would give for
// free are done here instead.
const syncByte = 0xAA

var crcTable = crc8.MakeTable(crc8.CRC8)

// SerialTransport drives the vehicle-bus UART link through goserial.
type SerialTransport struct {
	port *serial.Port
	r    *bufio.Reader

	writeMu sync.Mutex
}

// OpenSerialTransport opens device at baud and puts it in raw mode.
func OpenSerialTransport(device string, baud int) (*SerialTransport, error) {
	port, err := serial.Open(device, serial.NewOptions())
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", device)
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "set raw mode")
	}
	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "get termios")
	}
	attrs.SetCustomSpeed(uint32(baud))
	if err := port.SetAttr2(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "set baud rate")
	}
	return &SerialTransport{port: port, r: bufio.NewReader(port)}, nil
}

func (s *SerialTransport) Send(id uint32, payload []byte) error {
	if len(payload) > 255 {
		return fmt.Errorf("payload too long: %d bytes", len(payload))
	}
	buf := make([]byte, 0, 6+len(payload)+1)
	buf = append(buf, syncByte)
	var idBytes [4]byte
	binary.BigEndian.PutUint32(idBytes[:], id)
	buf = append(buf, idBytes[:]...)
	buf = append(buf, byte(len(payload)))
	buf = append(buf, payload...)
	buf = append(buf, crc8.Checksum(buf[1:], crcTable))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.port.Write(buf)
	return err
}

// Recv blocks until a well-formed frame is read, resyncing on any framing
// or checksum error by discarding bytes up to the next sync byte. ctx
// cancellation is best-effort: the underlying read is not itself
// interruptible, so cancellation only takes effect between frames.
func (s *SerialTransport) Recv(ctx context.Context) (uint32, []byte, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		default:
		}

		b, err := s.r.ReadByte()
		if err != nil {
			return 0, nil, errors.Wrap(err, "read sync byte")
		}
		if b != syncByte {
			continue
		}

		header := make([]byte, 5)
		if _, err := io.ReadFull(s.r, header); err != nil {
			return 0, nil, errors.Wrap(err, "read frame header")
		}
		id := binary.BigEndian.Uint32(header[:4])
		length := int(header[4])

		payload := make([]byte, length)
		if _, err := io.ReadFull(s.r, payload); err != nil {
			return 0, nil, errors.Wrap(err, "read frame payload")
		}
		crcByte, err := s.r.ReadByte()
		if err != nil {
			return 0, nil, errors.Wrap(err, "read frame crc")
		}

		check := append(append([]byte{}, header...), payload...)
		if crc8.Checksum(check, crcTable) != crcByte {
			continue // resync on the next sync byte
		}
		return id, payload, nil
	}
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}
