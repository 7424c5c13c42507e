// Package drip implements the step-sequence progression engine.
//
// The content catalog is process-wide immutable configuration: an ordered
// list of steps grouped into segments, each segment optionally gated by an
// unlock time. Changing the catalog is a deployment, not a runtime
// mutation. The engine advances subscribers one step per explicit request;
// nothing here is timer-driven.
package drip

import (
	"fmt"
	"time"
)

// StepKind distinguishes the two content step shapes.
type StepKind string

const (
	// StepGame directs the subscriber to a round of the external game.
	StepGame StepKind = "game"
	// StepPost delivers a text/media post whose action re-issues the
	// advance, keeping the chain self-perpetuating.
	StepPost StepKind = "post"
)

// ContentStep is one unit of the drip sequence, indexed 1..N.
type ContentStep struct {
	Step    int
	Segment int
	Kind    StepKind

	Title string

	// game steps
	Round    int
	Subtitle string

	// post steps
	Text         string
	VideoURL     string
	ThumbnailURL string
}

// Segment groups contiguous steps behind an optional unlock time.
type Segment struct {
	ID int
	// UnlockAt gates every step in the segment. The zero time means the
	// segment has always been unlocked.
	UnlockAt time.Time
}

// Catalog is the read-only step/segment table the engine resolves against.
type Catalog struct {
	steps    map[int]ContentStep
	segments map[int]Segment
	lastStep int
}

// NewCatalog builds a catalog from steps and segments. Every step must
// reference a declared segment.
func NewCatalog(steps []ContentStep, segments []Segment) (*Catalog, error) {
	c := &Catalog{
		steps:    make(map[int]ContentStep, len(steps)),
		segments: make(map[int]Segment, len(segments)),
	}
	for _, seg := range segments {
		c.segments[seg.ID] = seg
	}
	for _, step := range steps {
		if step.Step <= 0 {
			return nil, fmt.Errorf("step index must be positive, got %d", step.Step)
		}
		if _, ok := c.segments[step.Segment]; !ok {
			return nil, fmt.Errorf("step %d references unknown segment %d", step.Step, step.Segment)
		}
		c.steps[step.Step] = step
		if step.Step > c.lastStep {
			c.lastStep = step.Step
		}
	}
	return c, nil
}

// Step returns the step at index n, if defined.
func (c *Catalog) Step(n int) (ContentStep, bool) {
	s, ok := c.steps[n]
	return s, ok
}

// LastStep returns the highest defined step index N.
func (c *Catalog) LastStep() int {
	return c.lastStep
}

// Unlocked reports whether the step's segment is open at the given time.
func (c *Catalog) Unlocked(step ContentStep, now time.Time) bool {
	seg, ok := c.segments[step.Segment]
	if !ok {
		return false
	}
	return seg.UnlockAt.IsZero() || !now.Before(seg.UnlockAt)
}

// DefaultCatalog returns the launch sequence: three chapters, each a game
// round followed by four afterword posts, with no segment gates armed.
func DefaultCatalog() *Catalog {
	steps := []ContentStep{
		{Step: 1, Segment: 1, Kind: StepGame, Round: 1, Title: "Chapter One", Subtitle: "What will your face give away?"},
		{Step: 2, Segment: 1, Kind: StepPost, Title: "Chapter One - Afterword (1/4)", Text: "Every story starts with a look."},
		{Step: 3, Segment: 1, Kind: StepPost, Title: "Chapter One - Afterword (2/4)", Text: "Some answers only come after the song."},
		{Step: 4, Segment: 1, Kind: StepPost, Title: "Chapter One - Afterword (3/4)", Text: "She kept the second verse for later."},
		{Step: 5, Segment: 1, Kind: StepPost, Title: "Chapter One - Afterword (4/4)", Text: "One chapter down. Stay close."},
		{Step: 6, Segment: 2, Kind: StepGame, Round: 2, Title: "Chapter Two", Subtitle: "Ready for the second round?"},
		{Step: 7, Segment: 2, Kind: StepPost, Title: "Chapter Two - Afterword (1/4)", Text: "The middle of a story is the honest part."},
		{Step: 8, Segment: 2, Kind: StepPost, Title: "Chapter Two - Afterword (2/4)", Text: "Not every choice gets a second take."},
		{Step: 9, Segment: 2, Kind: StepPost, Title: "Chapter Two - Afterword (3/4)", Text: "She almost told you everything here."},
		{Step: 10, Segment: 2, Kind: StepPost, Title: "Chapter Two - Afterword (4/4)", Text: "One more chapter to go."},
		{Step: 11, Segment: 3, Kind: StepGame, Round: 3, Title: "Chapter Three", Subtitle: "The last round decides the ending."},
		{Step: 12, Segment: 3, Kind: StepPost, Title: "Chapter Three - Afterword (1/4)", Text: "Endings are just beginnings read backwards."},
		{Step: 13, Segment: 3, Kind: StepPost, Title: "Chapter Three - Afterword (2/4)", Text: "You were there for all of it."},
		{Step: 14, Segment: 3, Kind: StepPost, Title: "Chapter Three - Afterword (3/4)", Text: "Some words she could only sing."},
		{Step: 15, Segment: 3, Kind: StepPost, Title: "Finale", Text: "Thank you for following the whole story."},
	}
	segments := []Segment{{ID: 1}, {ID: 2}, {ID: 3}}
	c, err := NewCatalog(steps, segments)
	if err != nil {
		// The default table is static; a bad entry is a programming error.
		panic(err)
	}
	return c
}
