//go:build pcap
// +build pcap

package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/localizer/internal/timeutil"
)

// pcapSource replays a recorded UDP telemetry capture with the original
// inter-packet timing scaled by the speed multiplier.
type pcapSource struct {
	handle    *pcap.Handle
	packets   chan gopacket.Packet
	assembler *frameAssembler
	stats     StatsInterface
	clock     timeutil.Clock
	speed     float64

	lastTS time.Time
	queued []string
}

// NewPCAPSource opens the capture file and filters to UDP traffic on
// the telemetry port. Only available when building with the 'pcap'
// build tag.
func NewPCAPSource(cfg PCAPSourceConfig) (Source, error) {
	handle, err := pcap.OpenOffline(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", cfg.File, err)
	}

	filterStr := fmt.Sprintf("udp port %d", cfg.UDPPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}
	cfg.Streams.Diagf("telemetry: PCAP BPF filter set: %s", filterStr)

	stats := cfg.Stats
	if stats == nil {
		stats = noopStats{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &pcapSource{
		handle:    handle,
		packets:   gopacket.NewPacketSource(handle, handle.LinkType()).Packets(),
		assembler: newFrameAssembler(cfg.DT, stats, cfg.Streams, cfg.Recorder),
		stats:     stats,
		clock:     clock,
		speed:     cfg.Speed,
	}, nil
}

// Next returns the next step from the capture, pacing by the original
// capture timestamps. Returns io.EOF at end of file.
func (s *pcapSource) Next(ctx context.Context) (*Step, error) {
	for {
		for len(s.queued) > 0 {
			line := s.queued[0]
			s.queued = s.queued[1:]
			if step := s.assembler.feed(line); step != nil {
				return step, nil
			}
		}

		var packet gopacket.Packet
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case packet = <-s.packets:
		}
		if packet == nil {
			return nil, io.EOF
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		// Replay with original timing, scaled by the speed multiplier.
		ts := packet.Metadata().Timestamp
		if !s.lastTS.IsZero() && s.speed > 0 {
			if gap := ts.Sub(s.lastTS); gap > 0 {
				s.clock.Sleep(time.Duration(float64(gap) / s.speed))
			}
		}
		s.lastTS = ts

		s.stats.AddFrame(len(udp.Payload))
		s.queued = append(s.queued, strings.Split(string(udp.Payload), "\n")...)
	}
}

// Close closes the capture handle.
func (s *pcapSource) Close() error {
	s.handle.Close()
	return nil
}
