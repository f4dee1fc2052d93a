package mac

import (
	"testing"
	"time"

	"github.com/iti/rngstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestBackoff(method BackoffMethod) *Backoff {
	cfg := DefaultConfig()
	cfg.BackoffMethod = method
	return NewBackoff(cfg, rngstream.New("backoff"))
}

func TestExponentialBackoffBounds(t *testing.T) {
	b := newTestBackoff(BackoffExponential)
	unit := DefaultConfig().UnitBackoffPeriod
	ceiling := time.Duration((1<<DefaultConfig().MaxBE)-1) * unit

	for nb := 0; nb <= 10; nb++ {
		for range 200 {
			d := b.Next(nb)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, b.maxDuration(nb))
			assert.LessOrEqual(t, d, ceiling)
			assert.Zero(t, d%unit)
		}
	}
	assert.Equal(t, time.Duration(7)*unit, b.maxDuration(0))
	assert.Equal(t, ceiling, b.maxDuration(10))
}

func TestLinearAndConstantBackoffNeverZero(t *testing.T) {
	unit := DefaultConfig().UnitBackoffPeriod
	for _, m := range []BackoffMethod{BackoffConstant, BackoffLinear} {
		b := newTestBackoff(m)
		for nb := 0; nb < 5; nb++ {
			for range 100 {
				d := b.Next(nb)
				assert.GreaterOrEqual(t, d, unit, m.String())
				assert.LessOrEqual(t, d, b.maxDuration(nb), m.String())
			}
		}
	}
	lin := newTestBackoff(BackoffLinear)
	assert.Equal(t, 5*unit, lin.maxDuration(3))
	con := newTestBackoff(BackoffConstant)
	assert.Equal(t, 2*unit, con.maxDuration(3))
}

func TestBackoffAccumulates(t *testing.T) {
	b := newTestBackoff(BackoffConstant)
	assert.Zero(t, b.Mean())

	var total time.Duration
	for range 10 {
		total += b.Next(0)
	}
	assert.EqualValues(t, 10, b.Count())
	assert.Equal(t, total, b.Total())
	assert.Equal(t, total/10, b.Mean())
}

func TestParseBackoffMethod(t *testing.T) {
	for in, want := range map[string]BackoffMethod{
		"constant":     BackoffConstant,
		"Linear":       BackoffLinear,
		" exponential": BackoffExponential,
	} {
		got, err := ParseBackoffMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseBackoffMethod("quadratic")
	assert.ErrorIs(t, err, ErrUnknownBackoffMethod)
}

func TestConfigFromYAML(t *testing.T) {
	cfg := DefaultConfig()
	doc := []byte("backoff_method: linear\nmax_frame_retries: 5\nsifs: 1ms\n")
	require.NoError(t, yaml.Unmarshal(doc, &cfg))
	assert.Equal(t, BackoffLinear, cfg.BackoffMethod)
	assert.Equal(t, 5, cfg.MaxFrameRetries)
	assert.Equal(t, time.Millisecond, cfg.SIFS)
	assert.Equal(t, DefaultConfig().AckWaitDuration, cfg.AckWaitDuration)
	require.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	err := yaml.Unmarshal([]byte("backoff_method: random\n"), &bad)
	assert.ErrorIs(t, err, ErrUnknownBackoffMethod)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBE = 1
	cfg.UnitBackoffPeriod = 0
	cfg.SIFS = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max_be")
	assert.Contains(t, err.Error(), "unit_backoff_period")
	assert.Contains(t, err.Error(), "sifs")

	def := DefaultConfig()
	assert.NoError(t, def.Validate())
}

func TestSequenceTracker(t *testing.T) {
	s := NewSequenceTracker()
	assert.Equal(t, uint32(0), s.NextOutbound(neighbor))
	assert.Equal(t, uint32(1), s.NextOutbound(neighbor))
	assert.Equal(t, uint32(0), s.NextOutbound(other))

	_, known := s.expected(neighbor)
	assert.False(t, known)
	assert.True(t, s.Accept(neighbor, 5))
	assert.False(t, s.Accept(neighbor, 5))
	assert.False(t, s.Accept(neighbor, 2))
	exp, _ := s.expected(neighbor)
	assert.Equal(t, uint32(6), exp)
	assert.True(t, s.Accept(neighbor, 9))
	exp, _ = s.expected(neighbor)
	assert.Equal(t, uint32(10), exp)
}
