package telemetry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func newLoopbackUDPSource(t *testing.T) (*UDPSource, *net.UDPConn) {
	t.Helper()

	src, err := NewUDPSource(UDPSourceConfig{Address: "127.0.0.1:0", DT: 0.1})
	if err != nil {
		t.Fatalf("NewUDPSource failed: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	conn, err := net.DialUDP("udp", nil, src.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return src, conn
}

func TestUDPSourceReceivesStep(t *testing.T) {
	src, conn := newLoopbackUDPSource(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// CTL and OBS in separate datagrams.
	if _, err := conn.Write([]byte("CTL 2.5 0.05\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := conn.Write([]byte("OBS 1.0 2.0; 3.0 4.0\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	step, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if step.Control.Velocity != 2.5 || step.Control.YawRate != 0.05 {
		t.Errorf("control = %+v, want {2.5 0.05}", step.Control)
	}
	if len(step.Observations) != 2 {
		t.Errorf("got %d observations, want 2", len(step.Observations))
	}
	if step.DT != 0.1 {
		t.Errorf("dt = %v, want 0.1", step.DT)
	}
}

func TestUDPSourceMultipleStepsOneDatagram(t *testing.T) {
	src, conn := newLoopbackUDPSource(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := "CTL 1.0 0.0\nOBS 1 1\nCTL 2.0 0.0\nOBS 2 2\n"
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if first.Control.Velocity != 1.0 || second.Control.Velocity != 2.0 {
		t.Errorf("velocities = %v, %v, want 1, 2", first.Control.Velocity, second.Control.Velocity)
	}
	if first.Index != 0 || second.Index != 1 {
		t.Errorf("indices = %d, %d, want 0, 1", first.Index, second.Index)
	}
}

func TestUDPSourceSurvivesGarbage(t *testing.T) {
	src, conn := newLoopbackUDPSource(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := conn.Write([]byte("garbage\nCTL 1.0 0.0\nOBS 0 0\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	step, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if step.Control.Velocity != 1.0 {
		t.Errorf("control = %+v", step.Control)
	}
}

func TestUDPSourceCancellation(t *testing.T) {
	src, _ := newLoopbackUDPSource(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next on cancelled ctx = %v, want context.Canceled", err)
	}
}
