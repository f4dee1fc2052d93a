package linkstats

import "time"

// EstimatorConfig controls the periodic estimators. The EWMA weight applied
// to a fresh sample is StaleWeight when the previous estimate is older than
// StaleAfter, FreshWeight otherwise.
type EstimatorConfig struct {
	SampleWindow int
	StaleAfter   time.Duration
	FreshWeight  float64
	StaleWeight  float64
	QueueWeight  float64
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		SampleWindow: 600,
		StaleAfter:   300 * time.Second,
		FreshWeight:  0.6,
		StaleWeight:  0.9,
		QueueWeight:  0.8,
	}
}

// Estimators holds the channel-utilization, queue-occupancy and failure-rate
// estimates together with the interval counters that feed them.
type Estimators struct {
	cfg EstimatorConfig

	busy, idle    float64
	channelUtil   float64
	lastUtilReset time.Duration
	queueOcc      float64

	// interval counters, reset by RecomputeFailRates
	transmitted float64
	retries     float64
	backoffs    float64
	dropRetry   float64
	dropCong    float64
	received    float64

	failRetry   float64
	failCong    float64
	rxRate      float64
	lastReading time.Duration
}

func NewEstimators(cfg EstimatorConfig) *Estimators {
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = DefaultEstimatorConfig().SampleWindow
	}
	return &Estimators{cfg: cfg}
}

func (e *Estimators) weight(now, last time.Duration) float64 {
	if now-last > e.cfg.StaleAfter {
		return e.cfg.StaleWeight
	}
	return e.cfg.FreshWeight
}

// SampleChannel takes one busy/idle sample and one queue-length sample.
// When the window fills, the busy ratio is folded into the utilization
// estimate and the window restarts.
func (e *Estimators) SampleChannel(channelIdle bool, queueLen int, now time.Duration) {
	if channelIdle {
		e.idle++
	} else {
		e.busy++
	}
	if int(e.busy+e.idle) >= e.cfg.SampleWindow {
		ratio := e.busy / (e.busy + e.idle)
		w := e.weight(now, e.lastUtilReset)
		e.channelUtil = w*ratio + (1-w)*e.channelUtil
		e.busy, e.idle = 0, 0
		e.lastUtilReset = now
	}
	e.queueOcc = e.cfg.QueueWeight*float64(queueLen) + (1-e.cfg.QueueWeight)*e.queueOcc
}

func (e *Estimators) CountTransmitted() { e.transmitted++ }
func (e *Estimators) CountRetry() { e.retries++ }
func (e *Estimators) CountBackoff() { e.backoffs++ }
func (e *Estimators) CountReceived() { e.received++ }
func (e *Estimators) CountRetryDrop() { e.dropRetry++ }
func (e *Estimators) CountCongestionDrop() { e.dropCong++ }

// RecomputeFailRates folds the interval counters into the failure-rate
// estimates and starts a new interval.
func (e *Estimators) RecomputeFailRates(now time.Duration) {
	retrySample := 0.0
	if d := e.transmitted + e.retries; d > 0 {
		retrySample = (e.dropRetry + e.retries) / d
	}
	congSample := 0.0
	if d := e.transmitted + e.retries + e.backoffs; d > 0 {
		congSample = (e.dropCong + e.retries + e.backoffs) / d
	}
	w := e.weight(now, e.lastReading)
	e.failRetry = w*retrySample + (1-w)*e.failRetry
	e.failCong = w*congSample + (1-w)*e.failCong
	e.rxRate = e.received

	e.transmitted, e.retries, e.backoffs = 0, 0, 0
	e.dropRetry, e.dropCong, e.received = 0, 0, 0
	e.lastReading = now
}

func (e *Estimators) ChannelUtilization() float64 { return e.channelUtil }
func (e *Estimators) QueueOccupancy() float64 { return e.queueOcc }
func (e *Estimators) FailRateRetry() float64 { return e.failRetry }
func (e *Estimators) FailRateCongestion() float64 { return e.failCong }

// RxFrameRate is the number of frames received during the last full interval.
func (e *Estimators) RxFrameRate() float64 { return e.rxRate }

// CurrentChannelUtilization is the busy ratio of the window in progress.
func (e *Estimators) CurrentChannelUtilization() float64 {
	if e.busy+e.idle == 0 {
		return 0
	}
	return e.busy / (e.busy + e.idle)
}
