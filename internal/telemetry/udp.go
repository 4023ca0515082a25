package telemetry

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/banshee-data/localizer/internal/monitoring"
)

// UDPSourceConfig contains configuration options for the UDP source.
type UDPSourceConfig struct {
	Address     string
	RcvBuf      int
	DT          float64
	LogInterval time.Duration
	Stats       StatsInterface
	Streams     *monitoring.Streams
	Recorder    *Recorder
}

// UDPSource receives telemetry frames over UDP. Datagrams carry one or
// more newline-separated protocol lines; steps are assembled across
// datagram boundaries.
type UDPSource struct {
	conn        *net.UDPConn
	assembler   *frameAssembler
	streams     *monitoring.Streams
	stats       StatsInterface
	logInterval time.Duration
	lastLog     time.Time

	// Lines received but not yet consumed by the assembler.
	queued []string

	buf []byte
}

// NewUDPSource opens the UDP socket and tunes the receive buffer. A nil
// Stats gets a no-op implementation so the handling and logging paths
// never nil-deref.
func NewUDPSource(cfg UDPSourceConfig) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %q: %w", cfg.Address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address %q: %w", cfg.Address, err)
	}

	if cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(cfg.RcvBuf); err != nil {
			cfg.Streams.Opsf("telemetry: failed to set UDP receive buffer to %d: %v", cfg.RcvBuf, err)
		}
	}

	stats := cfg.Stats
	if stats == nil {
		stats = noopStats{}
	}
	logInterval := cfg.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	cfg.Streams.Opsf("telemetry: UDP source listening on %s (rcvbuf %d)", conn.LocalAddr(), cfg.RcvBuf)

	return &UDPSource{
		conn:        conn,
		assembler:   newFrameAssembler(cfg.DT, stats, cfg.Streams, cfg.Recorder),
		streams:     cfg.Streams,
		stats:       stats,
		logInterval: logInterval,
		lastLog:     time.Now(),
		buf:         make([]byte, 64*1024),
	}, nil
}

// LocalAddr returns the bound socket address, useful when listening on
// an ephemeral port.
func (s *UDPSource) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Next blocks until a full step has been received or ctx is cancelled.
// A UDP feed has no natural end, so Next never returns io.EOF.
func (s *UDPSource) Next(ctx context.Context) (*Step, error) {
	for {
		// Drain queued lines before touching the socket.
		for len(s.queued) > 0 {
			line := s.queued[0]
			s.queued = s.queued[1:]
			if step := s.assembler.feed(line); step != nil {
				return step, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if time.Since(s.lastLog) >= s.logInterval {
			s.stats.LogStats()
			s.lastLog = time.Now()
		}

		// Read deadline keeps the loop responsive to cancellation.
		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := s.conn.ReadFromUDP(s.buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("UDP read error: %w", err)
		}

		s.stats.AddFrame(n)
		s.queued = append(s.queued, strings.Split(string(s.buf[:n]), "\n")...)
	}
}

// Close closes the UDP socket.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
