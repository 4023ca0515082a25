package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/localizer/internal/mcl"
)

// TuningConfig represents the root configuration for localizer tuning
// parameters. Fields are pointers so keys omitted from the JSON fall
// back to defaults through the Get* accessors, which makes partial
// configs safe.
type TuningConfig struct {
	// Filter params
	ParticleCount *int     `json:"particle_count,omitempty"`
	Seed          *uint64  `json:"seed,omitempty"`
	SensorRange   *float64 `json:"sensor_range,omitempty"`
	DeltaT        *float64 `json:"delta_t,omitempty"`

	// Noise triples, ordered (x, y, heading). The measurement pair is
	// (x, y) in the map frame.
	InitStdDevs    *[]float64 `json:"init_std_devs,omitempty"`
	ProcessStdDevs *[]float64 `json:"process_std_devs,omitempty"`
	MeasureStdDevs *[]float64 `json:"measure_std_devs,omitempty"`

	// Telemetry source params
	Source       *string `json:"source,omitempty"` // replay | udp | serial | pcap
	DataDir      *string `json:"data_dir,omitempty"`
	UDPListen    *string `json:"udp_listen,omitempty"`
	UDPRcvBuf    *int    `json:"udp_rcv_buf,omitempty"`
	SerialPort   *string `json:"serial_port,omitempty"`
	SerialBaud   *int    `json:"serial_baud,omitempty"`
	ReplaySpeed  *float64 `json:"replay_speed,omitempty"`
	RecordFrames *bool    `json:"record_frames,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ParticleCount != nil && *c.ParticleCount <= 0 {
		return fmt.Errorf("particle_count must be positive, got %d", *c.ParticleCount)
	}
	if c.SensorRange != nil && *c.SensorRange <= 0 {
		return fmt.Errorf("sensor_range must be positive, got %f", *c.SensorRange)
	}
	if c.DeltaT != nil && *c.DeltaT <= 0 {
		return fmt.Errorf("delta_t must be positive, got %f", *c.DeltaT)
	}

	for name, triple := range map[string]*[]float64{
		"init_std_devs":    c.InitStdDevs,
		"process_std_devs": c.ProcessStdDevs,
	} {
		if triple == nil {
			continue
		}
		if len(*triple) != 3 {
			return fmt.Errorf("%s must have 3 elements (x, y, heading), got %d", name, len(*triple))
		}
		for i, s := range *triple {
			if s < 0 {
				return fmt.Errorf("%s[%d] must be non-negative, got %f", name, i, s)
			}
		}
	}
	if c.MeasureStdDevs != nil {
		if len(*c.MeasureStdDevs) != 2 {
			return fmt.Errorf("measure_std_devs must have 2 elements (x, y), got %d", len(*c.MeasureStdDevs))
		}
		for i, s := range *c.MeasureStdDevs {
			if s <= 0 {
				return fmt.Errorf("measure_std_devs[%d] must be positive, got %f", i, s)
			}
		}
	}

	if c.Source != nil {
		switch *c.Source {
		case "replay", "udp", "serial", "pcap":
		default:
			return fmt.Errorf("source must be one of replay, udp, serial, pcap; got %q", *c.Source)
		}
	}
	if c.ReplaySpeed != nil && *c.ReplaySpeed <= 0 {
		return fmt.Errorf("replay_speed must be positive, got %f", *c.ReplaySpeed)
	}
	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}

	return nil
}

// GetParticleCount returns the particle_count value or the default.
func (c *TuningConfig) GetParticleCount() int {
	if c.ParticleCount == nil {
		return 100
	}
	return *c.ParticleCount
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetSensorRange returns the sensor_range value in meters or the default.
func (c *TuningConfig) GetSensorRange() float64 {
	if c.SensorRange == nil {
		return 50.0
	}
	return *c.SensorRange
}

// GetDeltaT returns the delta_t step interval in seconds or the default.
func (c *TuningConfig) GetDeltaT() float64 {
	if c.DeltaT == nil {
		return 0.1
	}
	return *c.DeltaT
}

func tripleOrDefault(v *[]float64, def [3]float64) [3]float64 {
	if v == nil || len(*v) != 3 {
		return def
	}
	return [3]float64{(*v)[0], (*v)[1], (*v)[2]}
}

// GetInitStdDevs returns the initialization noise triple or the default.
func (c *TuningConfig) GetInitStdDevs() [3]float64 {
	return tripleOrDefault(c.InitStdDevs, [3]float64{0.3, 0.3, 0.01})
}

// GetProcessStdDevs returns the process noise triple or the default.
func (c *TuningConfig) GetProcessStdDevs() [3]float64 {
	return tripleOrDefault(c.ProcessStdDevs, [3]float64{0.3, 0.3, 0.01})
}

// GetMeasureStdDevs returns the measurement noise pair or the default.
func (c *TuningConfig) GetMeasureStdDevs() [2]float64 {
	if c.MeasureStdDevs == nil || len(*c.MeasureStdDevs) != 2 {
		return [2]float64{0.3, 0.3}
	}
	return [2]float64{(*c.MeasureStdDevs)[0], (*c.MeasureStdDevs)[1]}
}

// GetSource returns the telemetry source kind or the default.
func (c *TuningConfig) GetSource() string {
	if c.Source == nil {
		return "replay"
	}
	return *c.Source
}

// GetDataDir returns the replay dataset directory or the default.
func (c *TuningConfig) GetDataDir() string {
	if c.DataDir == nil {
		return "data"
	}
	return *c.DataDir
}

// GetUDPListen returns the UDP listen address or the default.
func (c *TuningConfig) GetUDPListen() string {
	if c.UDPListen == nil {
		return ":9001"
	}
	return *c.UDPListen
}

// GetUDPRcvBuf returns the UDP receive buffer size in bytes or the default.
func (c *TuningConfig) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil {
		return 1 << 20
	}
	return *c.UDPRcvBuf
}

// GetSerialPort returns the serial port path or the default.
func (c *TuningConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerialBaud returns the serial baud rate or the default.
func (c *TuningConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetReplaySpeed returns the replay speed multiplier or the default.
func (c *TuningConfig) GetReplaySpeed() float64 {
	if c.ReplaySpeed == nil {
		return 1.0
	}
	return *c.ReplaySpeed
}

// GetRecordFrames returns the record_frames value or the default.
func (c *TuningConfig) GetRecordFrames() bool {
	if c.RecordFrames == nil {
		return false
	}
	return *c.RecordFrames
}

// FilterConfig assembles the mcl filter configuration from the tuning
// values and their defaults.
func (c *TuningConfig) FilterConfig() mcl.FilterConfig {
	return mcl.FilterConfig{
		NumParticles:   c.GetParticleCount(),
		InitStdDevs:    c.GetInitStdDevs(),
		ProcessStdDevs: c.GetProcessStdDevs(),
		MeasureStdDevs: c.GetMeasureStdDevs(),
		SensorRange:    c.GetSensorRange(),
		Seed:           c.GetSeed(),
	}
}
