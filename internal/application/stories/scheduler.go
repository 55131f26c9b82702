package stories

import (
	"sync"
	"time"
)

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler delivers repeated ticks to fn until the returned cancel func is
// called. cancel must not block and may be called more than once.
type Scheduler interface {
	Schedule(fn func(now time.Time)) (cancel func())
}

// TickerScheduler ticks at a fixed interval on its own goroutine.
type TickerScheduler struct {
	Interval time.Duration
}

func (t TickerScheduler) Schedule(fn func(now time.Time)) func() {
	interval := t.Interval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				fn(now)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// ManualScheduler only ticks when Fire is called. Hosts that own their frame
// loop use it; so do tests.
type ManualScheduler struct {
	mu     sync.Mutex
	nextID int
	timers map[int]func(time.Time)
}

func (m *ManualScheduler) Schedule(fn func(now time.Time)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers == nil {
		m.timers = make(map[int]func(time.Time))
	}
	id := m.nextID
	m.nextID++
	m.timers[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.timers, id)
		m.mu.Unlock()
	}
}

// Fire delivers one tick to every live timer.
func (m *ManualScheduler) Fire(now time.Time) {
	m.mu.Lock()
	fns := make([]func(time.Time), 0, len(m.timers))
	for _, fn := range m.timers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(now)
	}
}

// Active is the number of uncancelled timers.
func (m *ManualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
