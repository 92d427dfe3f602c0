// File: internal/events/events.go
package events

import (
	"fmt"
	"math"

	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// Kind identifies what happened in an event record.
type Kind int

const (
	Collision Kind = iota
	GapPass
	Activation
	Disappearance
	ShrinkCycle
	Escape
	Diagnostic
	Reset
)

var kindNames = [...]string{
	Collision:     "collision",
	GapPass:       "gap_pass",
	Activation:    "activation",
	Disappearance: "disappearance",
	ShrinkCycle:   "shrink_cycle",
	Escape:        "escape",
	Diagnostic:    "diagnostic",
	Reset:         "reset",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name so exported streams stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText parses a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(b))
}

// NoBarrier marks records that do not refer to a barrier.
const NoBarrier = -1

// Record is one discrete thing that happened during a tick. Fields beyond
// Kind, Time and Position are only meaningful for the kinds noted on them.
type Record struct {
	Kind     Kind          `json:"kind"`
	Time     float64       `json:"time"`
	Position vmath.Vector2 `json:"position"`
	Body     int           `json:"body"`

	// Speed is the impact speed of a Collision.
	Speed float64 `json:"speed,omitempty"`
	// Barrier is the handle of the barrier involved, or NoBarrier.
	Barrier   int `json:"barrier"`
	Cleared   int `json:"cleared,omitempty"`
	Remaining int `json:"remaining,omitempty"`

	// Sound hints for audio collaborators.
	Note   int     `json:"note,omitempty"`
	Octave int     `json:"octave,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`

	// Bonus is set on progression events that happen after escape in bonus mode.
	Bonus   bool   `json:"bonus,omitempty"`
	Message string `json:"message,omitempty"`
}

// New returns a record of the given kind with no barrier attached.
func New(kind Kind, at float64, pos vmath.Vector2) Record {
	return Record{Kind: kind, Time: at, Position: pos, Barrier: NoBarrier}
}

// Sink accepts event records. Implementations must not drop records.
type Sink interface {
	Append(r Record)
}

// Discard is a Sink that ignores everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(Record) {}

// Log is an unbounded, append-only event buffer. It is not safe for concurrent use;
// each simulation owns its own.
type Log struct {
	records []Record
}

// Append adds a record to the end of the log.
func (l *Log) Append(r Record) {
	l.records = append(l.records, r)
}

// Len returns the number of undrained records.
func (l *Log) Len() int {
	return len(l.records)
}

// Drain returns every pending record in order and clears the log.
// It returns nil when the log is empty.
func (l *Log) Drain() []Record {
	if len(l.records) == 0 {
		return nil
	}
	out := l.records
	l.records = nil
	return out
}

// collisionSteps maps impact speed onto a seven-note scale.
const (
	noteStep   = 150.0
	octaveStep = 300.0
	maxNote    = 6
	maxOctave  = 2
)

// CollisionNote derives the scale degree and octave hint for an impact at the given speed.
func CollisionNote(speed float64) (note, octave int) {
	if speed <= 0 || math.IsNaN(speed) {
		return 0, 0
	}
	note = int(speed / noteStep)
	if note > maxNote {
		note = maxNote
	}
	octave = int(speed / octaveStep)
	if octave > maxOctave {
		octave = maxOctave
	}
	return note, octave
}

var passScale = [...]float64{1, 1.12, 1.25, 1.33, 1.5, 1.6, 1.75, 2.0}

// PassPitch is the pitch multiplier for clearing the barrier with the given handle.
// It climbs one scale step per barrier and one octave per full scale.
func PassPitch(barrier int) float64 {
	if barrier < 0 {
		return 1
	}
	octave := barrier / len(passScale)
	return passScale[barrier%len(passScale)] * math.Pow(2, float64(octave))
}
