package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadTuningConfigDefaults(t *testing.T) {
	cfg, err := LoadTuningConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if got := cfg.GetParticleCount(); got != 100 {
		t.Errorf("GetParticleCount = %d, want default 100", got)
	}
	if got := cfg.GetSource(); got != "replay" {
		t.Errorf("GetSource = %q, want default replay", got)
	}
	if got := cfg.GetInitStdDevs(); got != [3]float64{0.3, 0.3, 0.01} {
		t.Errorf("GetInitStdDevs = %v, want defaults", got)
	}
	if got := cfg.GetMeasureStdDevs(); got != [2]float64{0.3, 0.3} {
		t.Errorf("GetMeasureStdDevs = %v, want defaults", got)
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	cfg, err := LoadTuningConfig(writeConfig(t, `{
		"particle_count": 500,
		"seed": 99,
		"process_std_devs": [0.5, 0.5, 0.05],
		"source": "udp",
		"udp_listen": ":7000"
	}`))
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if got := cfg.GetParticleCount(); got != 500 {
		t.Errorf("GetParticleCount = %d, want 500", got)
	}
	if got := cfg.GetSeed(); got != 99 {
		t.Errorf("GetSeed = %d, want 99", got)
	}
	if got := cfg.GetProcessStdDevs(); got != [3]float64{0.5, 0.5, 0.05} {
		t.Errorf("GetProcessStdDevs = %v", got)
	}
	// Omitted keys keep defaults.
	if got := cfg.GetSensorRange(); got != 50.0 {
		t.Errorf("GetSensorRange = %v, want default 50", got)
	}
	if got := cfg.GetUDPListen(); got != ":7000" {
		t.Errorf("GetUDPListen = %q, want :7000", got)
	}
}

func TestLoadTuningConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"negative particles", `{"particle_count": -5}`},
		{"bad source", `{"source": "carrier-pigeon"}`},
		{"short triple", `{"init_std_devs": [0.3, 0.3]}`},
		{"negative std", `{"process_std_devs": [0.3, -0.3, 0.01]}`},
		{"zero measurement std", `{"measure_std_devs": [0, 0.3]}`},
		{"zero delta", `{"delta_t": 0}`},
		{"bad json", `{particle_count}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadTuningConfig(writeConfig(t, tt.contents)); err == nil {
				t.Errorf("LoadTuningConfig(%s) succeeded, want error", tt.contents)
			}
		})
	}
}

func TestLoadTuningConfigRejectsNonJSONPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("LoadTuningConfig accepted a non-.json path")
	}
}

func TestFilterConfigAssembly(t *testing.T) {
	cfg, err := LoadTuningConfig(writeConfig(t, `{
		"particle_count": 250,
		"seed": 7,
		"sensor_range": 75,
		"measure_std_devs": [0.2, 0.4]
	}`))
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	fc := cfg.FilterConfig()
	if fc.NumParticles != 250 || fc.Seed != 7 || fc.SensorRange != 75 {
		t.Errorf("FilterConfig = %+v", fc)
	}
	if fc.MeasureStdDevs != [2]float64{0.2, 0.4} {
		t.Errorf("MeasureStdDevs = %v", fc.MeasureStdDevs)
	}
	if err := fc.Validate(); err != nil {
		t.Errorf("assembled filter config invalid: %v", err)
	}
}
