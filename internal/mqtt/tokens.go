package mqtt

import (
	"sync"
	"time"
)

// DailyTokens accumulates token usage and resets at local midnight. It
// is safe for concurrent use.
type DailyTokens struct {
	mu       sync.Mutex
	input    int64
	output   int64
	requests int64
	day      int
	loc      *time.Location
	now      func() time.Time
}

// NewDailyTokens creates an accumulator; nil loc means [time.Local].
func NewDailyTokens(loc *time.Location) *DailyTokens {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyTokens{loc: loc, now: time.Now}
	d.day = d.today()
	return d
}

// OnTokens records one completed request.
func (d *DailyTokens) OnTokens(inputTokens, outputTokens int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	d.input += int64(inputTokens)
	d.output += int64(outputTokens)
	d.requests++
}

// Snapshot returns today's input tokens, output tokens and requests.
func (d *DailyTokens) Snapshot() (input, output, requests int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	return d.input, d.output, d.requests
}

func (d *DailyTokens) today() int {
	t := d.now().In(d.loc)
	return t.Year()*1000 + t.YearDay()
}

// rollover zeroes the counters on a new day. Callers hold mu.
func (d *DailyTokens) rollover() {
	if today := d.today(); today != d.day {
		d.input, d.output, d.requests = 0, 0, 0
		d.day = today
	}
}
