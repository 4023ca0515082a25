package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/localizer/internal/monitoring"
)

// SerialSourceConfig contains configuration options for the serial
// source.
type SerialSourceConfig struct {
	PortName    string
	BaudRate    int
	DT          float64
	LogInterval time.Duration
	Stats       StatsInterface
	Streams     *monitoring.Streams
	Recorder    *Recorder
}

// SerialSource reads the telemetry line protocol from a serial port,
// for bench rigs that bridge the vehicle bus over USB.
type SerialSource struct {
	port      io.ReadCloser
	assembler *frameAssembler
	streams   *monitoring.Streams
	stats     StatsInterface

	logInterval time.Duration
	lastLog     time.Time

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	lines     chan string
	readErr   chan error
}

// NewSerialSource opens the serial port. The reader goroutine starts on
// the first Next call.
func NewSerialSource(cfg SerialSourceConfig) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}

	port, err := serial.Open(cfg.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.PortName, err)
	}

	cfg.Streams.Opsf("telemetry: serial source on %s at %d baud", cfg.PortName, cfg.BaudRate)

	return newSerialSource(port, cfg), nil
}

// newSerialSource wires an already-open port; tests pass a pipe.
func newSerialSource(port io.ReadCloser, cfg SerialSourceConfig) *SerialSource {
	stats := cfg.Stats
	if stats == nil {
		stats = noopStats{}
	}
	logInterval := cfg.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &SerialSource{
		port:        port,
		assembler:   newFrameAssembler(cfg.DT, stats, cfg.Streams, cfg.Recorder),
		streams:     cfg.Streams,
		stats:       stats,
		logInterval: logInterval,
		lastLog:     time.Now(),
		done:        make(chan struct{}),
		lines:       make(chan string, 64),
		readErr:     make(chan error, 1),
	}
}

// monitor reads lines off the port and hands them to Next. A closed or
// failed port ends the run.
func (s *SerialSource) monitor() {
	scan := bufio.NewScanner(s.port)
	for scan.Scan() {
		select {
		case s.lines <- scan.Text():
		case <-s.done:
			s.readErr <- io.EOF
			close(s.lines)
			return
		}
	}
	if err := scan.Err(); err != nil {
		s.readErr <- fmt.Errorf("serial read error: %w", err)
	} else {
		s.readErr <- io.EOF
	}
	close(s.lines)
}

// Next blocks until a full step has been received, the port closes
// (io.EOF), or ctx is cancelled.
func (s *SerialSource) Next(ctx context.Context) (*Step, error) {
	s.startOnce.Do(func() { go s.monitor() })

	for {
		if time.Since(s.lastLog) >= s.logInterval {
			s.stats.LogStats()
			s.lastLog = time.Now()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return nil, <-s.readErr
			}
			s.stats.AddFrame(len(line))
			if step := s.assembler.feed(line); step != nil {
				return step, nil
			}
		}
	}
}

// Close closes the serial port, which also stops the reader goroutine.
func (s *SerialSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.port.Close()
}
