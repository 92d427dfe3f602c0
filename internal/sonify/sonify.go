// File: internal/sonify/sonify.go
package sonify

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/wav"

	"github.com/xkilldash9x/ringsim/internal/config"
	"github.com/xkilldash9x/ringsim/internal/events"
)

// majorScale holds the frequency ratios of the seven collision notes.
var majorScale = [...]float64{1, 9.0 / 8, 5.0 / 4, 4.0 / 3, 3.0 / 2, 5.0 / 3, 15.0 / 8}

// escapeChord is a major triad, voiced two octaves above the base.
var escapeChord = [...]float64{1, 5.0 / 4, 3.0 / 2}

const attack = 2 * time.Millisecond

// Note is one tone on the track.
type Note struct {
	Start  time.Duration
	Freq   float64
	Length time.Duration
	Gain   float64
}

// End is when the note stops sounding.
func (n Note) End() time.Duration { return n.Start + n.Length }

// Notes maps the audible events onto tones. Collisions use the record's scale degree and
// octave, gap passes use its pitch, an escape plays a chord and each shrink cycle a low
// thump. Everything else is silent.
func Notes(recs []events.Record, cfg config.AudioConfig) []Note {
	click := cfg.ClickLength
	base := cfg.BaseFrequency

	var notes []Note
	for _, r := range recs {
		at := seconds(r.Time)
		switch r.Kind {
		case events.Collision:
			note := min(max(r.Note, 0), len(majorScale)-1)
			notes = append(notes, Note{
				Start:  at,
				Freq:   base * majorScale[note] * math.Pow(2, float64(r.Octave)),
				Length: click,
				Gain:   0.35 + 0.1*float64(r.Octave),
			})
		case events.GapPass:
			pitch := r.Pitch
			if pitch <= 0 {
				pitch = events.PassPitch(r.Barrier)
			}
			notes = append(notes, Note{Start: at, Freq: base * 2 * pitch, Length: 2 * click, Gain: 0.6})
		case events.Escape:
			for _, ratio := range escapeChord {
				notes = append(notes, Note{Start: at, Freq: base * 4 * ratio, Length: 6 * click, Gain: 0.4})
			}
		case events.ShrinkCycle:
			notes = append(notes, Note{Start: at, Freq: base / 2, Length: click, Gain: 0.2})
		}
	}
	return notes
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Track mixes notes into a single stream. It never drains; bound it with beep.Take.
type Track struct {
	rate   beep.SampleRate
	notes  []Note
	starts []int
	next   int
	pos    int
	voices []beep.Streamer
	buf    [][2]float64
	err    error
}

// NewTrack prepares notes for streaming at the given rate. Frequencies at or above the
// Nyquist limit are pulled just below it.
func NewTrack(rate beep.SampleRate, notes []Note) *Track {
	sorted := append([]Note(nil), notes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	starts := make([]int, len(sorted))
	for i, n := range sorted {
		starts[i] = rate.N(max(n.Start, 0))
	}
	return &Track{rate: rate, notes: sorted, starts: starts}
}

// Stream implements beep.Streamer.
func (t *Track) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i] = [2]float64{}
	}

	filled := 0
	for filled < len(samples) {
		for t.next < len(t.notes) && t.starts[t.next] <= t.pos {
			if v, err := t.voice(t.notes[t.next]); err != nil {
				t.err = err
			} else {
				t.voices = append(t.voices, v)
			}
			t.next++
		}

		end := len(samples)
		if t.next < len(t.notes) {
			end = min(end, filled+t.starts[t.next]-t.pos)
		}
		t.mix(samples[filled:end])
		t.pos += end - filled
		filled = end
	}
	return len(samples), true
}

// Err reports the first note that could not be synthesized.
func (t *Track) Err() error { return t.err }

func (t *Track) mix(chunk [][2]float64) {
	if len(t.voices) == 0 {
		return
	}
	if cap(t.buf) < len(chunk) {
		t.buf = make([][2]float64, len(chunk))
	}
	buf := t.buf[:len(chunk)]

	live := t.voices[:0]
	for _, v := range t.voices {
		done := false
		for off := 0; off < len(chunk) && !done; {
			n, ok := v.Stream(buf[:len(chunk)-off])
			for i := 0; i < n; i++ {
				chunk[off+i][0] += buf[i][0]
				chunk[off+i][1] += buf[i][1]
			}
			off += n
			done = !ok || n == 0
		}
		if !done {
			live = append(live, v)
		}
	}
	t.voices = live
}

func (t *Track) voice(n Note) (beep.Streamer, error) {
	freq := n.Freq
	if nyquist := float64(t.rate) / 2; freq >= nyquist {
		freq = nyquist * 0.95
	}
	tone, err := generators.SineTone(t.rate, freq)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize %.1f Hz: %w", freq, err)
	}
	length := t.rate.N(n.Length)
	return &envelope{
		streamer: beep.Take(length, tone),
		attack:   t.rate.N(attack),
		total:    length,
		gain:     n.Gain,
	}, nil
}

// envelope applies a linear attack and an exponential decay to a note.
type envelope struct {
	streamer beep.Streamer
	position int
	attack   int
	total    int
	gain     float64
}

func (e *envelope) Stream(samples [][2]float64) (int, bool) {
	n, ok := e.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		vol := e.gain * math.Exp(-4*float64(e.position)/float64(max(e.total, 1)))
		if e.position < e.attack {
			vol *= float64(e.position) / float64(e.attack)
		}
		samples[i][0] *= vol
		samples[i][1] *= vol
		e.position++
	}
	return n, ok
}

func (e *envelope) Err() error { return e.streamer.Err() }

// Length is how long a rendering of recs runs: at least minLength, and long enough for the
// last note to ring out.
func Length(recs []events.Record, minLength time.Duration, cfg config.AudioConfig) time.Duration {
	length := minLength
	for _, n := range Notes(recs, cfg) {
		length = max(length, n.End())
	}
	return length
}

// Render returns a finite stream of the run's sound track and its format.
func Render(recs []events.Record, minLength time.Duration, cfg config.AudioConfig) (beep.Streamer, beep.Format, error) {
	if cfg.SampleRate <= 0 {
		return nil, beep.Format{}, errors.New("sample rate must be positive")
	}
	rate := beep.SampleRate(cfg.SampleRate)
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}

	track := NewTrack(rate, Notes(recs, cfg))
	var s beep.Streamer = &effects.Volume{Streamer: track, Base: 2, Volume: cfg.Volume}
	s = beep.Take(rate.N(Length(recs, minLength, cfg)), s)
	return s, format, nil
}

// WriteWAV renders the run's sound track into w as 16-bit stereo PCM.
func WriteWAV(w io.WriteSeeker, recs []events.Record, minLength time.Duration, cfg config.AudioConfig) error {
	s, format, err := Render(recs, minLength, cfg)
	if err != nil {
		return err
	}
	if err := wav.Encode(w, s, format); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	return nil
}
