// Package anomaly flags security events that deviate from the behavioral
// baseline of their source. Baselines track interarrival times per
// (event type, source IP) pair using Welford's online algorithm, so the
// detector needs no training data and no bounded history.
package anomaly

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/yairfalse/vigil/types"
)

// baseline holds running interarrival statistics for one event source
type baseline struct {
	lastSeen time.Time
	count    int
	mean     float64
	m2       float64
}

// update folds a new interarrival sample into the running statistics
func (b *baseline) update(interval float64) {
	b.count++
	delta := interval - b.mean
	b.mean += delta / float64(b.count)
	b.m2 += delta * (interval - b.mean)
}

// stddev returns the sample standard deviation of observed intervals
func (b *baseline) stddev() float64 {
	if b.count < 2 {
		return 0
	}
	return math.Sqrt(b.m2 / float64(b.count-1))
}

// Detector flags anomalous events. Safe for concurrent use.
type Detector struct {
	mu        sync.Mutex
	baselines map[string]*baseline

	sigma      float64
	minSamples int
}

// NewDetector creates a detector. sigma is the z-score threshold on
// interarrival deviation; minSamples is how many intervals a baseline
// needs before deviations are judged.
func NewDetector(sigma float64, minSamples int) *Detector {
	if sigma <= 0 {
		sigma = 3.0
	}
	if minSamples < 2 {
		minSamples = 2
	}
	return &Detector{
		baselines:  make(map[string]*baseline),
		sigma:      sigma,
		minSamples: minSamples,
	}
}

// Check reports whether the event is anomalous and folds it into the
// baseline for its source. Critical login attempts are always anomalous.
// The first event from a source seeds its baseline and is never anomalous
// on its own.
func (d *Detector) Check(event types.SecurityEvent) bool {
	always := event.Severity == types.SeverityCritical && event.EventType == "LOGIN_ATTEMPT"

	d.mu.Lock()
	defer d.mu.Unlock()

	key := baselineKey(event)
	b, seen := d.baselines[key]
	if !seen {
		d.baselines[key] = &baseline{lastSeen: event.Timestamp}
		return always
	}

	interval := event.Timestamp.Sub(b.lastSeen).Seconds()
	if interval < 0 {
		interval = 0
	}

	deviant := false
	if b.count >= d.minSamples {
		if sd := b.stddev(); sd > 0 {
			z := math.Abs(interval-b.mean) / sd
			deviant = z >= d.sigma
		}
	}

	b.update(interval)
	b.lastSeen = event.Timestamp

	return always || deviant
}

// Baselines returns the number of tracked sources
func (d *Detector) Baselines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.baselines)
}

func baselineKey(event types.SecurityEvent) string {
	return fmt.Sprintf("%s|%s", event.EventType, event.SourceIP)
}
