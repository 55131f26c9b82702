package stories

import (
	"context"
	"errors"
	"sync"
	"time"

	"kbs-backend/internal/domain"
)

// StoryDuration is how long each story stays on screen.
const StoryDuration = 5000 * time.Millisecond

const saveTimeout = 2 * time.Second

// ErrNoStories is returned when opening an empty sequence.
var ErrNoStories = errors.New("no stories to play")

// State is the playback state.
type State int

const (
	Closed State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "closed"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options wires a Controller to its collaborators. Clock and Scheduler default
// to the system clock and a 16ms ticker.
type Options struct {
	Clock     Clock
	Scheduler Scheduler
	// Seen is the viewer's seen set; the controller works on a copy.
	Seen domain.SeenSet
	// SaveSeen persists the whole seen set on a background writer. Failures are
	// logged and ignored; the last set is flushed when playback closes.
	SaveSeen func(ctx context.Context, seen domain.SeenSet) error
	// OnClose runs once, outside the controller lock, when playback closes.
	OnClose func()
}

// Controller plays one community's stories, one at a time. All transitions are
// safe for concurrent use. Every state change bumps the epoch; timers are bound
// to the epoch they were started in and their ticks are dropped once it moves on.
type Controller struct {
	mu      sync.Mutex
	stories []domain.Story
	clock   Clock
	sched   Scheduler
	seen    domain.SeenSet
	writer  *seenWriter
	onClose func()

	state   State
	index   int
	elapsed time.Duration
	anchor  time.Time
	epoch   uint64
	cancel  func()
}

// Open starts playback at the first unseen story, or at the beginning when
// every story has been seen.
func Open(stories []domain.Story, opts Options) (*Controller, error) {
	if len(stories) == 0 {
		return nil, ErrNoStories
	}
	c := &Controller{
		stories: append([]domain.Story(nil), stories...),
		clock:   opts.Clock,
		sched:   opts.Scheduler,
		seen:    opts.Seen.Clone(),
		onClose: opts.OnClose,
	}
	if opts.SaveSeen != nil {
		c.writer = newSeenWriter(opts.SaveSeen)
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.sched == nil {
		c.sched = TickerScheduler{}
	}

	c.mu.Lock()
	c.playLocked(StartIndex(stories, c.seen))
	c.mu.Unlock()
	return c, nil
}

// StartIndex is the index of the first story not in seen, or 0.
func StartIndex(stories []domain.Story, seen domain.SeenSet) int {
	for i, s := range stories {
		if !seen.Has(s.ID) {
			return i
		}
	}
	return 0
}

// Tick advances elapsed time to now. Ticks from another epoch, or while not
// playing, are discarded and Tick returns false.
func (c *Controller) Tick(epoch uint64, now time.Time) bool {
	c.mu.Lock()
	if c.state != Playing || epoch != c.epoch {
		c.mu.Unlock()
		return false
	}
	c.foldLocked(now)
	closed := false
	if c.elapsed >= StoryDuration {
		c.elapsed = StoryDuration
		closed = c.advanceLocked()
	}
	c.mu.Unlock()
	c.notifyClosed(closed)
	return true
}

// Advance moves to the next story, closing after the last one.
func (c *Controller) Advance() {
	c.mu.Lock()
	closed := false
	if c.state != Closed {
		closed = c.advanceLocked()
	}
	c.mu.Unlock()
	c.notifyClosed(closed)
}

// Next is a tap on the right side of the screen.
func (c *Controller) Next() {
	c.Advance()
}

// Prev is a tap on the left side: previous story, or restart the first one.
func (c *Controller) Prev() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return
	}
	if c.index > 0 {
		c.playLocked(c.index - 1)
		return
	}
	c.playLocked(0)
}

// HoldStart pauses without losing elapsed time.
func (c *Controller) HoldStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing {
		return
	}
	c.foldLocked(c.clock.Now())
	c.stopTimerLocked()
	c.state = Paused
	c.epoch++
}

// HoldEnd resumes from exactly the elapsed time captured by HoldStart.
func (c *Controller) HoldEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return
	}
	c.state = Playing
	c.anchor = c.clock.Now()
	c.epoch++
	c.startTimerLocked()
}

// Close stops playback from any state.
func (c *Controller) Close() {
	c.mu.Lock()
	closed := c.closeLocked()
	c.mu.Unlock()
	c.notifyClosed(closed)
}

// Epoch is the current generation; pass it to Tick.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Snapshot is the viewer state a UI renders.
type Snapshot struct {
	State     State         `json:"state"`
	Index     int           `json:"index"`
	Total     int           `json:"total"`
	ElapsedMs int64         `json:"elapsed_ms"`
	Epoch     uint64        `json:"epoch"`
	Progress  []float64     `json:"progress"`
	Story     *domain.Story `json:"story,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	story := c.stories[c.index]
	return Snapshot{
		State:     c.state,
		Index:     c.index,
		Total:     len(c.stories),
		ElapsedMs: c.elapsed.Milliseconds(),
		Epoch:     c.epoch,
		Progress:  Progress(len(c.stories), c.index, c.elapsed),
		Story:     &story,
	}
}

// Progress returns the fill of each segment: full before index, elapsed over
// StoryDuration (capped at 1) at index, empty after.
func Progress(n, index int, elapsed time.Duration) []float64 {
	out := make([]float64, n)
	for i := range out {
		switch {
		case i < index:
			out[i] = 1
		case i == index:
			f := float64(elapsed) / float64(StoryDuration)
			if f > 1 {
				f = 1
			}
			if f < 0 {
				f = 0
			}
			out[i] = f
		}
	}
	return out
}

func (c *Controller) advanceLocked() bool {
	if c.index >= len(c.stories)-1 {
		return c.closeLocked()
	}
	c.playLocked(c.index + 1)
	return false
}

func (c *Controller) playLocked(index int) {
	c.stopTimerLocked()
	c.state = Playing
	c.index = index
	c.elapsed = 0
	c.anchor = c.clock.Now()
	c.epoch++
	c.markSeenLocked()
	c.startTimerLocked()
}

func (c *Controller) closeLocked() bool {
	if c.state == Closed {
		return false
	}
	c.stopTimerLocked()
	c.state = Closed
	c.epoch++
	return true
}

// foldLocked adds the time since the last anchor to elapsed.
func (c *Controller) foldLocked(now time.Time) {
	if d := now.Sub(c.anchor); d > 0 {
		c.elapsed += d
		c.anchor = now
	}
}

func (c *Controller) startTimerLocked() {
	epoch := c.epoch
	c.cancel = c.sched.Schedule(func(now time.Time) {
		c.Tick(epoch, now)
	})
}

func (c *Controller) stopTimerLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// markSeenLocked records the displayed story and hands a copy of the whole
// set to the writer. Submitting under the lock keeps saves in display order.
func (c *Controller) markSeenLocked() {
	if !c.seen.Add(c.stories[c.index].ID) || c.writer == nil {
		return
	}
	c.writer.Submit(c.seen.Clone())
}

// notifyClosed runs outside the lock: it waits for the last seen save, then
// fires the close callback.
func (c *Controller) notifyClosed(closed bool) {
	if !closed {
		return
	}
	if c.writer != nil {
		c.writer.Close()
	}
	if c.onClose != nil {
		c.onClose()
	}
}
