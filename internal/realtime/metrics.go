package realtime

import (
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/edumirror/backend/internal/models"
)

// frozenTTL bounds how long a frozen accumulator outlives the end of its session.
const frozenTTL = 10 * time.Minute

// accumulator folds one session's telemetry. Its own mutex serializes
// updates for that session only.
type accumulator struct {
	mu        sync.Mutex
	volumeSum float64
	paceSum   float64
	audio     int
	gazeSum   float64
	gaze      int
	pages     int
	frozen    bool
	snapshot  models.RealtimeMetrics
}

func (a *accumulator) summarize() models.RealtimeMetrics {
	m := models.RealtimeMetrics{
		PageTransitions: a.pages,
		AudioSamples:    a.audio,
		GazeSamples:     a.gaze,
	}
	if a.audio > 0 {
		m.AvgVolume = round2(a.volumeSum / float64(a.audio))
		m.AvgSpeakingPace = round2(a.paceSum / float64(a.audio))
	}
	if a.gaze > 0 {
		m.AudienceContactRatio = round2(a.gazeSum / float64(a.gaze) * 100)
	}
	return m
}

// Metrics holds per-session telemetry accumulators. Entries expire after ttl
// so abandoned sessions do not pin memory.
type Metrics struct {
	cache *cache.Cache
}

// NewMetrics creates an accumulator store whose entries live for ttl.
func NewMetrics(ttl time.Duration) *Metrics {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Metrics{cache: cache.New(ttl, ttl/4)}
}

func (m *Metrics) entry(sessionID string) *accumulator {
	if v, ok := m.cache.Get(sessionID); ok {
		return v.(*accumulator)
	}
	acc := &accumulator{}
	if err := m.cache.Add(sessionID, acc, cache.DefaultExpiration); err != nil {
		// another receive loop created it first
		if v, ok := m.cache.Get(sessionID); ok {
			return v.(*accumulator)
		}
	}
	return acc
}

// update applies fn unless the session has been frozen; it reports whether fn ran.
func (m *Metrics) update(sessionID string, fn func(a *accumulator)) bool {
	acc := m.entry(sessionID)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.frozen {
		return false
	}
	fn(acc)
	return true
}

// RecordAudio folds one audio chunk into the session's averages.
func (m *Metrics) RecordAudio(sessionID string, volume, pace float64) bool {
	return m.update(sessionID, func(a *accumulator) {
		a.volumeSum += volume
		a.paceSum += pace
		a.audio++
	})
}

// RecordPageTurn counts one slide transition.
func (m *Metrics) RecordPageTurn(sessionID string) bool {
	return m.update(sessionID, func(a *accumulator) { a.pages++ })
}

// RecordGaze folds one gaze sample into the audience-contact ratio.
func (m *Metrics) RecordGaze(sessionID string, ratio float64) bool {
	return m.update(sessionID, func(a *accumulator) {
		a.gazeSum += ratio
		a.gaze++
	})
}

// Snapshot returns the current summary and whether the session is frozen.
func (m *Metrics) Snapshot(sessionID string) (models.RealtimeMetrics, bool) {
	v, ok := m.cache.Get(sessionID)
	if !ok {
		return models.RealtimeMetrics{}, false
	}
	acc := v.(*accumulator)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.frozen {
		return acc.snapshot, true
	}
	return acc.summarize(), false
}

// Freeze stops accumulation for sessionID and returns the final summary.
// Telemetry recorded after Freeze is ignored. Freezing twice returns the same summary.
func (m *Metrics) Freeze(sessionID string) models.RealtimeMetrics {
	acc := m.entry(sessionID)
	acc.mu.Lock()
	if !acc.frozen {
		acc.frozen = true
		acc.snapshot = acc.summarize()
	}
	snap := acc.snapshot
	acc.mu.Unlock()
	m.cache.Set(sessionID, acc, frozenTTL)
	return snap
}

// Thaw resumes accumulation after a Freeze whose session transition was not persisted.
func (m *Metrics) Thaw(sessionID string) {
	v, ok := m.cache.Get(sessionID)
	if !ok {
		return
	}
	acc := v.(*accumulator)
	acc.mu.Lock()
	acc.frozen = false
	acc.mu.Unlock()
	m.cache.Set(sessionID, acc, cache.DefaultExpiration)
}

// Discard drops the accumulator for sessionID.
func (m *Metrics) Discard(sessionID string) {
	m.cache.Delete(sessionID)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
