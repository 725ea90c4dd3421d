// Package autopilot binds the session controller, the question detector,
// the transcript and the advisor client into the watch-detect-consult-inject
// loop. One orchestrator drives one session end to end.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ihavespoons/seance/internal/detect"
	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/transcript"
)

// marker prefixes every user-visible status line so it cannot be confused
// with relayed child output.
const marker = "[seance]"

// Controller is the slice of the PTY session the orchestrator needs.
type Controller interface {
	// Output yields relayed chunks; closed when the child exits.
	Output() <-chan string

	// Type injects paced keystrokes plus a trailing submission key.
	Type(text string) error
}

// Advisor answers questions. Implemented by *advisor.Client.
type Advisor interface {
	Ask(ctx context.Context, systemPrompt, contextText, question string) (string, error)
}

// Options configures one orchestrator run.
type Options struct {
	// AutoRespond types answers back into the session. When false the
	// orchestrator runs in watch-only mode: detect and suggest, never type.
	AutoRespond bool

	// StartupDelay suppresses detection while the child prints its banner.
	StartupDelay time.Duration

	// ResponseDelay is the pause between receiving an answer and typing it.
	ResponseDelay time.Duration

	// Cooldown suppresses detection after a consultation finishes, so the
	// echo of a typed answer cannot trigger another round.
	Cooldown time.Duration

	// ContextLines bounds the transcript slice sent with each question.
	ContextLines int

	// FlushDelay is the quiet interval after which a buffered partial
	// line is evaluated, catching prompts that wait for input without
	// printing a trailing newline. Defaults to 500ms.
	FlushDelay time.Duration

	// SystemPrompt is sent with every consultation.
	SystemPrompt string
}

// Result summarizes a finished run.
type Result struct {
	QuestionsDetected int
	AnswersReceived   int
	AnswersTyped      int
}

// Orchestrator drives one session.
type Orchestrator struct {
	ctrl     Controller
	advisor  Advisor
	buffer   *transcript.Buffer
	detector *detect.Detector
	opts     Options

	status io.Writer

	inFlight      atomic.Bool
	cooldownUntil atomic.Int64 // unix nanos

	questions atomic.Int64
	answers   atomic.Int64
	typed     atomic.Int64
}

// New creates an orchestrator for one session.
func New(ctrl Controller, adv Advisor, buf *transcript.Buffer, det *detect.Detector, opts Options) *Orchestrator {
	if opts.ContextLines < 1 {
		opts.ContextLines = 100
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	return &Orchestrator{
		ctrl:     ctrl,
		advisor:  adv,
		buffer:   buf,
		detector: det,
		opts:     opts,
		status:   os.Stderr,
	}
}

// SetStatusWriter redirects user-visible status lines (used in tests).
func (o *Orchestrator) SetStatusWriter(w io.Writer) {
	o.status = w
}

// Run consumes relayed output until the child exits or ctx is cancelled.
// Advisor failures never stop the loop; only cancellation and child exit
// end it. The returned Result is valid in every case.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	start := time.Now()
	listening := false

	// Quiet timer: when output stalls mid-line, the buffered partial line
	// is probably a prompt waiting for input.
	quiet := time.NewTimer(o.opts.FlushDelay)
	defer quiet.Stop()

	for {
		if !listening && time.Since(start) >= o.opts.StartupDelay {
			listening = true
			o.statusf("listening for questions")
		}

		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			return o.result(), ctx.Err()

		case chunk, ok := <-o.ctrl.Output():
			if !ok {
				// Let an in-flight consultation finish before counting.
				wg.Wait()
				return o.result(), nil
			}

			event := o.detector.Scan(chunk)

			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(o.opts.FlushDelay)

			if listening {
				o.dispatch(ctx, &wg, event)
			}

		case <-quiet.C:
			quiet.Reset(o.opts.FlushDelay)
			if listening {
				o.dispatch(ctx, &wg, o.detector.Flush())
			}
		}
	}
}

// dispatch runs the gating for one detected question and, when it passes,
// starts the consultation goroutine.
func (o *Orchestrator) dispatch(ctx context.Context, wg *sync.WaitGroup, event *detect.QuestionEvent) {
	if event == nil {
		return
	}

	if time.Now().UnixNano() < o.cooldownUntil.Load() {
		logger.Debug().Str("question", event.Question).Msg("Question dropped: in cooldown window")
		return
	}

	// At most one consultation in flight; later questions are dropped,
	// not queued, to avoid answer storms.
	if !o.inFlight.CompareAndSwap(false, true) {
		logger.Debug().Str("question", event.Question).Msg("Question dropped: consultation in flight")
		return
	}

	o.questions.Add(1)
	o.statusf("question detected: %s", event.Question)

	wg.Add(1)
	go func(q string) {
		defer wg.Done()
		o.consult(ctx, q)
	}(event.Question)
}

// consult asks the advisor and, in autopilot mode, types the answer back
// after the configured response delay.
func (o *Orchestrator) consult(ctx context.Context, question string) {
	defer func() {
		o.cooldownUntil.Store(time.Now().Add(o.opts.Cooldown).UnixNano())
		o.inFlight.Store(false)
	}()

	// Watch mode without a credential still flags questions.
	if o.advisor == nil {
		o.statusf("no API key configured; set advisor.api_key to get suggestions")
		return
	}

	o.statusf("consulting advisor...")
	contextText := o.buffer.TailString(o.opts.ContextLines)

	answer, err := o.advisor.Ask(ctx, o.opts.SystemPrompt, contextText, question)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.statusf("advisor error: %v", err)
		o.buffer.AppendLine(fmt.Sprintf("%s advisor error: %v", marker, err))
		return
	}

	o.answers.Add(1)
	o.buffer.AppendLine(fmt.Sprintf("%s answer: %s", marker, answer))

	if !o.opts.AutoRespond {
		o.statusf("suggested answer: %s", answer)
		o.statusf("(copy and paste, or type your own)")
		return
	}

	o.statusf("answer: %s", answer)

	select {
	case <-ctx.Done():
		return
	case <-time.After(o.opts.ResponseDelay):
	}

	if err := o.ctrl.Type(answer); err != nil {
		o.statusf("failed to type answer: %v", err)
		logger.Warn().Err(err).Msg("Keystroke injection failed")
		return
	}
	o.typed.Add(1)
}

func (o *Orchestrator) statusf(format string, args ...interface{}) {
	fmt.Fprintf(o.status, "\n%s %s\n", marker, fmt.Sprintf(format, args...))
}

func (o *Orchestrator) result() Result {
	return Result{
		QuestionsDetected: int(o.questions.Load()),
		AnswersReceived:   int(o.answers.Load()),
		AnswersTyped:      int(o.typed.Load()),
	}
}
