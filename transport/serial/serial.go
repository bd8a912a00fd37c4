// Package serial provides the serial port stream transport.
package serial

import (
	"fmt"

	"github.com/framelink/framelink/link"
	"github.com/framelink/framelink/transport/stream"
	"go.bug.st/serial"
)

const defaultReadBufferSize = 4096

// Config holds the serial line settings
type Config struct {
	BaudRate int
	DataBits int
	StopBits serial.StopBits
	Parity   serial.Parity
}

// DefaultConfig returns 115200 8N1.
func DefaultConfig() Config {
	return Config{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
}

// Open opens the serial device and returns a stream-kind transport. Serial
// lines deliver small bursts, so the read buffer is kept small.
func Open(device string, cfg Config) (link.Transport, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", device, err)
	}

	return stream.New(port, stream.WithReadBufferSize(defaultReadBufferSize)), nil
}
