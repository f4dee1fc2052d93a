package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/mac"
)

var ErrInvalidScenario = errors.New("invalid scenario")

type NodeCfg struct {
	Count     int    `yaml:"count" json:"count"`
	Placement string `yaml:"placement" json:"placement"` // grid | uniform
}

type TrafficCfg struct {
	Pattern        string        `yaml:"pattern" json:"pattern"`   // poisson | periodic
	Interval       time.Duration `yaml:"interval" json:"interval"` // mean gap between frames, per node
	BroadcastRatio float64       `yaml:"broadcast_ratio" json:"broadcast_ratio"`
	PayloadSize    int           `yaml:"payload_size" json:"payload_size"`
	StartAfter     time.Duration `yaml:"start_after" json:"start_after"`
}

type TelemetryCfg struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	ETXAlpha float64       `yaml:"etx_alpha" json:"etx_alpha"`
}

type LogCfg struct {
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
	LogDir      string `yaml:"log_dir" json:"log_dir"`
}

type Scenario struct {
	Name         string        `yaml:"name" json:"name"`
	Duration     time.Duration `yaml:"duration" json:"duration"`
	Seed         uint64        `yaml:"seed" json:"seed"`
	AreaSide     float64       `yaml:"area_side" json:"area_side"` // meters
	Nodes        NodeCfg       `yaml:"nodes" json:"nodes"`
	Traffic      TrafficCfg    `yaml:"traffic" json:"traffic"`
	Radio        MediumConfig  `yaml:"radio" json:"radio"`
	MAC          mac.Config    `yaml:"mac" json:"mac"`
	Telemetry    TelemetryCfg  `yaml:"telemetry" json:"telemetry"`
	EndMode      string        `yaml:"end_mode" json:"end_mode"` // stop | drain
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout"`
	Pace         float64       `yaml:"pace" json:"pace"` // simulated seconds per wall second, 0 runs flat out
	Logging      LogCfg        `yaml:"logging" json:"logging"`
}

// DefaultScenario is a small grid with light poisson traffic.
func DefaultScenario() Scenario {
	return Scenario{
		Name:     "default",
		Duration: time.Minute,
		Seed:     1,
		AreaSide: 150,
		Nodes:    NodeCfg{Count: 9, Placement: "grid"},
		Traffic: TrafficCfg{
			Pattern:        "poisson",
			Interval:       2 * time.Second,
			BroadcastRatio: 0.1,
			PayloadSize:    32,
			StartAfter:     time.Second,
		},
		Radio:        DefaultMediumConfig(),
		MAC:          mac.DefaultConfig(),
		Telemetry:    TelemetryCfg{Interval: 10 * time.Second, ETXAlpha: 0.5},
		EndMode:      "stop",
		DrainTimeout: 5 * time.Second,
		Logging:      LogCfg{MetricsFile: "metrics.json", LogDir: "logs"},
	}
}

// LoadScenario reads a YAML or JSON scenario. Both go through the YAML
// decoder first, so durations may be written as Go duration strings
// ("250ms") in either format. JSON with integer nanoseconds falls back to
// encoding/json. Fields missing from the file keep their defaults.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc := DefaultScenario()
	if yerr := yaml.Unmarshal(f, &sc); yerr != nil {
		// fallback JSON
		sc = DefaultScenario()
		if jerr := json.Unmarshal(f, &sc); jerr != nil {
			if strings.EqualFold(filepath.Ext(path), ".json") {
				return nil, fmt.Errorf("parse scenario %s: %w", path, jerr)
			}
			return nil, fmt.Errorf("parse scenario %s: %w", path, yerr)
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	check(sc.Duration > 0, "duration must be positive")
	check(sc.Nodes.Count >= 1, "nodes.count must be at least 1")
	check(sc.Nodes.Placement == "grid" || sc.Nodes.Placement == "uniform", "nodes.placement must be grid or uniform")
	check(sc.AreaSide >= 0, "area_side must not be negative")
	check(sc.Traffic.Pattern == "poisson" || sc.Traffic.Pattern == "periodic", "traffic.pattern must be poisson or periodic")
	check(sc.Traffic.Interval > 0, "traffic.interval must be positive")
	check(sc.Traffic.BroadcastRatio >= 0 && sc.Traffic.BroadcastRatio <= 1, "traffic.broadcast_ratio must be within [0,1]")
	check(sc.Traffic.PayloadSize >= 0 && sc.Traffic.PayloadSize <= frame.MaxPayload, fmt.Sprintf("traffic.payload_size must be within [0,%d]", frame.MaxPayload))
	check(sc.Radio.Range > 0, "radio.range must be positive")
	check(sc.Radio.Bitrate > 0, "radio.bitrate must be positive")
	check(sc.Pace >= 0, "pace must not be negative")
	check(sc.EndMode == "stop" || sc.EndMode == "drain", "end_mode must be stop or drain")
	if err := sc.MAC.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, errors.Join(errs...))
	}
	return nil
}
