package autopilot

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ihavespoons/seance/internal/detect"
	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/transcript"
)

func init() {
	logger.InitQuiet()
}

// fakeController feeds scripted output and records typed answers.
type fakeController struct {
	out chan string

	mu    sync.Mutex
	typed []string
}

func newFakeController() *fakeController {
	return &fakeController{out: make(chan string, 16)}
}

func (f *fakeController) Output() <-chan string { return f.out }

func (f *fakeController) Type(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeController) typedAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typed...)
}

// fakeAdvisor answers from a fixed response, optionally blocking until
// released so tests can hold a consultation in flight.
type fakeAdvisor struct {
	answer  string
	err     error
	started chan string // receives each question as Ask begins
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newFakeAdvisor(answer string) *fakeAdvisor {
	return &fakeAdvisor{
		answer:  answer,
		started: make(chan string, 16),
	}
}

func (f *fakeAdvisor) Ask(ctx context.Context, systemPrompt, contextText, question string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	f.started <- question
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

func (f *fakeAdvisor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestOrchestrator(t *testing.T, ctrl Controller, adv Advisor, opts Options) *Orchestrator {
	t.Helper()

	buf, err := transcript.Open(filepath.Join(t.TempDir(), "buffer.txt"), 200)
	if err != nil {
		t.Fatalf("transcript.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = buf.Close() })

	det, err := detect.New(nil)
	if err != nil {
		t.Fatalf("detect.New() error: %v", err)
	}

	o := New(ctrl, adv, buf, det, opts)
	o.SetStatusWriter(io.Discard)
	return o
}

func TestAutoRespondTypesAnswer(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("use Fastify")
	orch := newTestOrchestrator(t, ctrl, adv, Options{AutoRespond: true})

	ctrl.out <- "Should I use Express.js or Fastify?\n"

	done := make(chan Result, 1)
	go func() {
		result, _ := orch.Run(context.Background())
		done <- result
	}()

	select {
	case q := <-adv.started:
		if q != "Should I use Express.js or Fastify?" {
			t.Errorf("question = %q", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("advisor never consulted")
	}

	// Closing the output ends the run; Run waits for the consultation.
	close(ctrl.out)
	result := <-done

	if result.QuestionsDetected != 1 || result.AnswersReceived != 1 || result.AnswersTyped != 1 {
		t.Errorf("result = %+v", result)
	}
	if typed := ctrl.typedAnswers(); len(typed) != 1 || typed[0] != "use Fastify" {
		t.Errorf("typed = %v", typed)
	}
}

func TestWatchModeNeverTypes(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("a suggestion")
	orch := newTestOrchestrator(t, ctrl, adv, Options{AutoRespond: false})

	ctrl.out <- "Do you want to continue?\n"

	done := make(chan Result, 1)
	go func() {
		result, _ := orch.Run(context.Background())
		done <- result
	}()

	select {
	case <-adv.started:
	case <-time.After(2 * time.Second):
		t.Fatal("advisor never consulted")
	}
	close(ctrl.out)
	result := <-done

	if result.AnswersReceived != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.AnswersTyped != 0 {
		t.Errorf("watch mode typed %d answers", result.AnswersTyped)
	}
	if typed := ctrl.typedAnswers(); len(typed) != 0 {
		t.Errorf("watch mode injected keystrokes: %v", typed)
	}
}

func TestSingleConsultationInFlight(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("ok")
	adv.release = make(chan struct{})
	orch := newTestOrchestrator(t, ctrl, adv, Options{
		AutoRespond: true,
		Cooldown:    time.Hour,
	})

	done := make(chan Result, 1)
	go func() {
		result, _ := orch.Run(context.Background())
		done <- result
	}()

	ctrl.out <- "Should I run the migration?\n"
	select {
	case <-adv.started:
	case <-time.After(2 * time.Second):
		t.Fatal("advisor never consulted")
	}

	// A second question while the first consultation is in flight is
	// dropped, not queued.
	ctrl.out <- "Do you want to overwrite the file?\n"

	close(adv.release)
	close(ctrl.out)
	result := <-done

	if got := adv.callCount(); got != 1 {
		t.Errorf("advisor consulted %d times, expected 1", got)
	}
	if result.QuestionsDetected != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestCooldownSuppressesFollowup(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("ok")
	orch := newTestOrchestrator(t, ctrl, adv, Options{
		AutoRespond: true,
		Cooldown:    time.Hour,
	})

	done := make(chan Result, 1)
	go func() {
		result, _ := orch.Run(context.Background())
		done <- result
	}()

	ctrl.out <- "Should I run the migration?\n"
	select {
	case <-adv.started:
	case <-time.After(2 * time.Second):
		t.Fatal("advisor never consulted")
	}

	// Wait for the consultation to finish so the cooldown window is armed.
	deadline := time.Now().Add(2 * time.Second)
	for len(ctrl.typedAnswers()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("answer never typed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctrl.out <- "Do you want to overwrite the file?\n"
	close(ctrl.out)
	result := <-done

	if got := adv.callCount(); got != 1 {
		t.Errorf("advisor consulted %d times during cooldown, expected 1", got)
	}
	if result.QuestionsDetected != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestAdvisorFailureKeepsLoopRunning(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("")
	adv.err = errors.New("boom")
	orch := newTestOrchestrator(t, ctrl, adv, Options{AutoRespond: true})

	done := make(chan Result, 1)
	go func() {
		result, _ := orch.Run(context.Background())
		done <- result
	}()

	ctrl.out <- "Should I run the migration?\n"
	select {
	case <-adv.started:
	case <-time.After(2 * time.Second):
		t.Fatal("advisor never consulted")
	}

	// The loop survives the failure and keeps consuming output.
	ctrl.out <- "ordinary build output\n"
	close(ctrl.out)
	result := <-done

	if result.QuestionsDetected != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.AnswersReceived != 0 || result.AnswersTyped != 0 {
		t.Errorf("failed consultation counted as answered: %+v", result)
	}
	if typed := ctrl.typedAnswers(); len(typed) != 0 {
		t.Errorf("keystrokes injected despite advisor failure: %v", typed)
	}

	// The failure is visible in the transcript for later "last N" review.
	if tail := orch.buffer.TailString(10); !strings.Contains(tail, "advisor error") {
		t.Errorf("transcript missing error note: %q", tail)
	}
}

func TestNoAdvisorOnlyFlagsQuestions(t *testing.T) {
	ctrl := newFakeController()
	orch := newTestOrchestrator(t, ctrl, nil, Options{AutoRespond: false})

	ctrl.out <- "Should I run the migration?\n"
	close(ctrl.out)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.QuestionsDetected != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.AnswersReceived != 0 || result.AnswersTyped != 0 {
		t.Errorf("answers without an advisor: %+v", result)
	}
	if typed := ctrl.typedAnswers(); len(typed) != 0 {
		t.Errorf("keystrokes injected without an advisor: %v", typed)
	}
}

func TestQuietPromptWithoutNewlineIsDetected(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("y")
	orch := newTestOrchestrator(t, ctrl, adv, Options{
		AutoRespond: true,
		FlushDelay:  10 * time.Millisecond,
	})

	done := make(chan Result, 1)
	go func() {
		result, _ := orch.Run(context.Background())
		done <- result
	}()

	// The prompt waits for input without printing a trailing newline; the
	// quiet interval must surface it.
	ctrl.out <- "Do you want to continue? [y/N] "

	select {
	case q := <-adv.started:
		if q != "Do you want to continue? [y/N]" {
			t.Errorf("question = %q", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unterminated prompt never detected")
	}

	close(ctrl.out)
	result := <-done

	if result.QuestionsDetected != 1 || result.AnswersTyped != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestStartupDelaySuppressesBanner(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("ok")
	orch := newTestOrchestrator(t, ctrl, adv, Options{
		AutoRespond:  true,
		StartupDelay: time.Hour,
	})

	// Banner text that looks like a question arrives immediately.
	ctrl.out <- "Do you want to see the tutorial?\n"
	close(ctrl.out)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.QuestionsDetected != 0 {
		t.Errorf("banner question consulted: %+v", result)
	}
	if got := adv.callCount(); got != 0 {
		t.Errorf("advisor consulted %d times during startup", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctrl := newFakeController()
	adv := newFakeAdvisor("ok")
	orch := newTestOrchestrator(t, ctrl, adv, Options{AutoRespond: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
