package mac

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mesh-mac-simulation/internal/linkstats"
)

var (
	ErrUnknownBackoffMethod = errors.New("unknown backoff method")
	ErrInvalidConfig        = errors.New("invalid mac configuration")
)

// BackoffMethod selects how backoff windows grow with the number of busy
// channel assessments in the current cycle.
type BackoffMethod int

const (
	backoffUnset BackoffMethod = iota
	BackoffConstant
	BackoffLinear
	BackoffExponential
)

func ParseBackoffMethod(s string) (BackoffMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "constant":
		return BackoffConstant, nil
	case "linear":
		return BackoffLinear, nil
	case "exponential":
		return BackoffExponential, nil
	}
	return backoffUnset, fmt.Errorf("%w %q: use \"constant\", \"linear\" or \"exponential\"", ErrUnknownBackoffMethod, s)
}

func (m BackoffMethod) String() string {
	switch m {
	case BackoffConstant:
		return "constant"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "unset"
	}
}

func (m BackoffMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *BackoffMethod) UnmarshalText(b []byte) error {
	v, err := ParseBackoffMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Config holds the MAC parameters. Zero intervals for the channel sampler
// or the failure-rate routine disable that periodic estimator.
type Config struct {
	UseAcks           bool          `yaml:"use_acks" json:"use_acks"`
	SIFS              time.Duration `yaml:"sifs" json:"sifs"`
	AckWaitDuration   time.Duration `yaml:"ack_wait_duration" json:"ack_wait_duration"`
	UnitBackoffPeriod time.Duration `yaml:"unit_backoff_period" json:"unit_backoff_period"`
	CCADetectionTime  time.Duration `yaml:"cca_detection_time" json:"cca_detection_time"`
	RxSetupTime       time.Duration `yaml:"rx_setup_time" json:"rx_setup_time"`
	TurnaroundTime    time.Duration `yaml:"turnaround_time" json:"turnaround_time"`
	MaxCSMABackoffs   int           `yaml:"max_csma_backoffs" json:"max_csma_backoffs"`
	MaxFrameRetries   int           `yaml:"max_frame_retries" json:"max_frame_retries"`
	BackoffMethod     BackoffMethod `yaml:"backoff_method" json:"backoff_method"`
	MinBE             int           `yaml:"min_be" json:"min_be"`
	MaxBE             int           `yaml:"max_be" json:"max_be"`
	ContentionWindow  int           `yaml:"contention_window" json:"contention_window"`
	QueueCapacity     int           `yaml:"queue_capacity" json:"queue_capacity"` // 0 = unbounded

	ChannelSampleDelay    time.Duration `yaml:"channel_sample_delay" json:"channel_sample_delay"`
	ChannelSampleInterval time.Duration `yaml:"channel_sample_interval" json:"channel_sample_interval"`
	ChannelSampleWindow   int           `yaml:"channel_sample_window" json:"channel_sample_window"`
	FailRateDelay         time.Duration `yaml:"fail_rate_delay" json:"fail_rate_delay"`
	FailRatePeriod        time.Duration `yaml:"fail_rate_period" json:"fail_rate_period"`
	StaleAfter            time.Duration `yaml:"stale_after" json:"stale_after"`
	FreshWeight           float64       `yaml:"fresh_weight" json:"fresh_weight"`
	StaleWeight           float64       `yaml:"stale_weight" json:"stale_weight"`
	QueueWeight           float64       `yaml:"queue_weight" json:"queue_weight"`
}

// DefaultConfig returns IEEE 802.15.4 2.4 GHz O-QPSK timings. The ACK wait
// is longer than the standard 864µs because ACKs carry full 64-bit addresses.
func DefaultConfig() Config {
	est := linkstats.DefaultEstimatorConfig()
	return Config{
		UseAcks:           true,
		SIFS:              192 * time.Microsecond,
		AckWaitDuration:   1200 * time.Microsecond,
		UnitBackoffPeriod: 320 * time.Microsecond,
		CCADetectionTime:  128 * time.Microsecond,
		RxSetupTime:       0,
		TurnaroundTime:    192 * time.Microsecond,
		MaxCSMABackoffs:   5,
		MaxFrameRetries:   3,
		BackoffMethod:     BackoffExponential,
		MinBE:             3,
		MaxBE:             8,
		ContentionWindow:  2,

		ChannelSampleDelay:    5 * time.Second,
		ChannelSampleInterval: time.Second,
		ChannelSampleWindow:   est.SampleWindow,
		FailRateDelay:         2 * time.Second,
		FailRatePeriod:        600 * time.Second,
		StaleAfter:            est.StaleAfter,
		FreshWeight:           est.FreshWeight,
		StaleWeight:           est.StaleWeight,
		QueueWeight:           est.QueueWeight,
	}
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	switch c.BackoffMethod {
	case BackoffConstant, BackoffLinear:
		check(c.ContentionWindow >= 1, "contention_window must be >= 1, got %d", c.ContentionWindow)
	case BackoffExponential:
		check(c.MinBE >= 0, "min_be must be >= 0, got %d", c.MinBE)
		check(c.MaxBE >= c.MinBE, "max_be (%d) must be >= min_be (%d)", c.MaxBE, c.MinBE)
		check(c.MaxBE <= 30, "max_be must be <= 30, got %d", c.MaxBE)
	default:
		errs = append(errs, fmt.Errorf("%w: backoff_method not set", ErrUnknownBackoffMethod))
	}
	check(c.UnitBackoffPeriod > 0, "unit_backoff_period must be positive")
	check(c.MaxCSMABackoffs >= 0, "max_csma_backoffs must be >= 0, got %d", c.MaxCSMABackoffs)
	check(c.MaxFrameRetries >= 0, "max_frame_retries must be >= 0, got %d", c.MaxFrameRetries)
	check(c.QueueCapacity >= 0, "queue_capacity must be >= 0, got %d", c.QueueCapacity)
	check(c.CCADetectionTime >= 0 && c.RxSetupTime >= 0 && c.TurnaroundTime >= 0, "cca/rx setup/turnaround times must not be negative")
	if c.UseAcks {
		check(c.SIFS > 0, "sifs must be positive when acks are enabled")
		check(c.AckWaitDuration > 0, "ack_wait_duration must be positive when acks are enabled")
	}
	if c.ChannelSampleInterval > 0 {
		check(c.ChannelSampleWindow > 0, "channel_sample_window must be positive")
		check(c.QueueWeight >= 0 && c.QueueWeight <= 1, "queue_weight must be within [0,1]")
	}
	check(c.FreshWeight >= 0 && c.FreshWeight <= 1, "fresh_weight must be within [0,1]")
	check(c.StaleWeight >= 0 && c.StaleWeight <= 1, "stale_weight must be within [0,1]")
	check(c.ChannelSampleInterval >= 0 && c.FailRatePeriod >= 0, "periodic intervals must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c *Config) estimatorConfig() linkstats.EstimatorConfig {
	return linkstats.EstimatorConfig{
		SampleWindow: c.ChannelSampleWindow,
		StaleAfter:   c.StaleAfter,
		FreshWeight:  c.FreshWeight,
		StaleWeight:  c.StaleWeight,
		QueueWeight:  c.QueueWeight,
	}
}
