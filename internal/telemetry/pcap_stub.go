//go:build !pcap
// +build !pcap

package telemetry

import "fmt"

// NewPCAPSource is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable capture replay.
func NewPCAPSource(cfg PCAPSourceConfig) (Source, error) {
	return nil, fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable capture replay")
}
