package testutil

import (
	"strconv"
	"sync"
	"time"

	"storyfeed/internal/feed"
)

// Epoch is "now" for store fixtures: 09:00 UTC on a school day. Seeded
// stories are dated relative to it.
var Epoch = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

// StubClock is a feed.Clock that only moves when told to.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ feed.Clock = (*StubClock)(nil)

// FixedClock returns a StubClock reading Epoch.
func FixedClock() *StubClock {
	return &StubClock{now: Epoch}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// StoryIDs is a feed.IDGenerator handing out story-1, story-2, ...
type StoryIDs struct {
	mu   sync.Mutex
	next int
}

var _ feed.IDGenerator = (*StoryIDs)(nil)

func NewStoryIDs() *StoryIDs {
	return &StoryIDs{}
}

func (g *StoryIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "story-" + strconv.Itoa(g.next)
}
