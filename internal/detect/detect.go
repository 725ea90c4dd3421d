// Package detect classifies freshly arrived terminal output as
// question-like or not, using an ordered table of regex heuristics. It is
// deliberately pattern-based: false positives and negatives are accepted.
package detect

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ihavespoons/seance/internal/config"
)

// QuestionEvent is a detected question-like utterance. It is transient:
// consumed by the orchestrator and never persisted beyond the transcript.
type QuestionEvent struct {
	// Question is the cleaned line that matched.
	Question string

	// Pattern is the heuristic that fired.
	Pattern string

	// Timestamp is when the line was scanned.
	Timestamp time.Time
}

type compiledRule struct {
	re   *regexp.Regexp
	kind RuleKind
}

// Detector applies the heuristic table to newly arrived output. It keeps a
// read cursor (buffered partial line) so every byte is evaluated exactly
// once, and remembers the last detected question so the same prompt cannot
// fire twice in a row.
type Detector struct {
	rules        []compiledRule
	pending      string
	lastQuestion string
}

// New builds a detector from the built-in rule table plus any extra
// patterns from the configuration. Extra rules run after the defaults.
func New(extra []config.PatternRule) (*Detector, error) {
	d := &Detector{}

	for _, r := range defaultRules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid built-in pattern %q: %w", r.Pattern, err)
		}
		d.rules = append(d.rules, compiledRule{re: re, kind: r.Kind})
	}

	for _, r := range extra {
		kind := RuleKind(r.Kind)
		if kind != KindQuestion && kind != KindSkip {
			return nil, fmt.Errorf("invalid rule kind %q for pattern %q", r.Kind, r.Pattern)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid extra pattern %q: %w", r.Pattern, err)
		}
		d.rules = append(d.rules, compiledRule{re: re, kind: kind})
	}

	return d, nil
}

// Scan feeds a chunk of raw output to the detector and returns the first
// question event found in the chunk's complete lines, or nil. The cursor
// always advances over the whole chunk, so a chunk is never re-evaluated
// even when an event is returned from its middle.
func (d *Detector) Scan(chunk string) *QuestionEvent {
	d.pending += chunk

	var event *QuestionEvent
	for {
		idx := strings.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		d.pending = d.pending[idx+1:]

		if event != nil {
			continue // still consume remaining lines
		}
		event = d.classify(line)
	}

	return event
}

// Flush evaluates any buffered partial line as if it were complete. Useful
// for prompts that wait for input without printing a trailing newline.
func (d *Detector) Flush() *QuestionEvent {
	if d.pending == "" {
		return nil
	}
	line := d.pending
	d.pending = ""
	return d.classify(line)
}

func (d *Detector) classify(line string) *QuestionEvent {
	clean := strings.TrimSpace(Clean(line))
	if clean == "" {
		return nil
	}

	// Skip rules win over question rules regardless of table position,
	// so extra question patterns cannot resurrect code or diff lines.
	for _, r := range d.rules {
		if r.kind == KindSkip && r.re.MatchString(clean) {
			return nil
		}
	}

	var matched string
	for _, r := range d.rules {
		if r.kind == KindQuestion && r.re.MatchString(clean) {
			matched = r.re.String()
			break
		}
	}
	if matched == "" {
		return nil
	}

	if clean == d.lastQuestion {
		return nil
	}
	d.lastQuestion = clean

	return &QuestionEvent{
		Question:  clean,
		Pattern:   matched,
		Timestamp: time.Now(),
	}
}
