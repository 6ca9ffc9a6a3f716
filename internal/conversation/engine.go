// Package conversation drives the turn-based assistant chat: the ordered
// message log, the symptom form lifecycle, and the scheduled assistant
// replies.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/asthmacare/companion/internal/domain"
	"github.com/asthmacare/companion/internal/gateway"
	"github.com/asthmacare/companion/internal/session"
	"github.com/google/uuid"
)

// FormState names the symptom form's position in the engine's state
// machine.
type FormState string

const (
	FormClosed     FormState = "closed"
	FormOpen       FormState = "open"
	FormSubmitting FormState = "submitting"
)

const greeting = "Hello! I'm your Asthma Care assistant. I can help you assess your symptoms and provide personalized recommendations. How are you feeling today?"

// fillerReplies are the assistant's pre-written responses to free-form
// chat. Exactly one is chosen uniformly per user message.
var fillerReplies = [4]string{
	"I understand you might be experiencing some respiratory symptoms. Would you like to complete a quick assessment to check your asthma status?",
	"It sounds like you may be having some asthma-related symptoms. Let's do a quick assessment to understand your condition better.",
	"I'd like to ask you some questions about your symptoms to provide better guidance. Would you like to take a quick assessment?",
	"Thanks for sharing how you're feeling. A short symptom assessment can help me give more specific recommendations. Shall we run through one?",
}

// formKeywords open the assessment form when they appear in a user
// message, independent of the random draw.
var formKeywords = []string{"symptom", "not feeling well", "assess"}

// Config holds engine timing and branching parameters.
type Config struct {
	// ReplyDelay is the simulated latency before the assistant's filler
	// reply appears.
	ReplyDelay time.Duration
	// FormOpenDelay is the pause between a form-suggesting reply and the
	// form actually opening.
	FormOpenDelay time.Duration
	// FormTriggerOdds is the probability that the form opens without any
	// keyword match.
	FormTriggerOdds float64
}

// DefaultConfig returns the stock engine timings.
func DefaultConfig() Config {
	return Config{
		ReplyDelay:      1500 * time.Millisecond,
		FormOpenDelay:   500 * time.Millisecond,
		FormTriggerOdds: 0.5,
	}
}

// Engine owns the append-only message log and the form state machine.
// It is safe for concurrent use; suspended work (scheduled replies, an
// outstanding submission) never blocks further sends.
type Engine struct {
	cfg      Config
	sessions *session.Manager
	gw       gateway.Client
	logger   *slog.Logger

	// schedule and randFloat are swapped out in tests for determinism.
	schedule  func(d time.Duration, fn func())
	randFloat func() float64
	now       func() time.Time

	mu        sync.RWMutex
	messages  []domain.Message
	formState FormState
	typing    int

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewEngine creates an engine seeded with the assistant's greeting.
func NewEngine(cfg Config, sessions *session.Manager, gw gateway.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReplyDelay <= 0 {
		cfg.ReplyDelay = DefaultConfig().ReplyDelay
	}
	if cfg.FormOpenDelay <= 0 {
		cfg.FormOpenDelay = DefaultConfig().FormOpenDelay
	}
	if cfg.FormTriggerOdds <= 0 {
		cfg.FormTriggerOdds = DefaultConfig().FormTriggerOdds
	}

	e := &Engine{
		cfg:       cfg,
		sessions:  sessions,
		gw:        gw,
		logger:    logger,
		schedule:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		randFloat: rand.Float64,
		now:       time.Now,
		formState: FormClosed,
		subs:      make(map[int]chan Event),
	}

	e.append(e.newMessage(greeting, domain.SenderAssistant))
	return e
}

// Messages returns a copy of the message log in append order.
func (e *Engine) Messages() []domain.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// FormState returns the current position of the symptom form.
func (e *Engine) FormState() FormState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.formState
}

// Typing returns how many assistant replies are currently pending. The
// UI may show one composing indicator per pending reply.
func (e *Engine) Typing() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.typing
}

// SendUserMessage appends a user message and schedules the assistant's
// reply. Blank input is a no-op. The user message is visible before the
// reply; rapid sends each get their own independent reply and those may
// resolve in either order.
func (e *Engine) SendUserMessage(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	e.append(e.newMessage(text, domain.SenderUser))
	e.startTyping()

	e.schedule(e.cfg.ReplyDelay, func() {
		e.deliverReply(text)
	})
}

func (e *Engine) deliverReply(trigger string) {
	reply := fillerReplies[e.randIndex(len(fillerReplies))]
	e.append(e.newMessage(reply, domain.SenderAssistant))
	e.stopTyping()

	if e.shouldOpenForm(trigger) {
		e.schedule(e.cfg.FormOpenDelay, e.openForm)
	}
}

// shouldOpenForm honors both trigger paths: a keyword in the user's
// message, or an unconditioned random draw.
func (e *Engine) shouldOpenForm(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range formKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return e.randFloat() < e.cfg.FormTriggerOdds
}

func (e *Engine) openForm() {
	e.mu.Lock()
	if e.formState != FormClosed {
		e.mu.Unlock()
		return
	}
	e.formState = FormOpen
	e.mu.Unlock()

	e.emit(Event{Type: EventFormOpened})
}

// ErrNoOpenForm is returned when a submission arrives without the form
// being open.
var ErrNoOpenForm = fmt.Errorf("no symptom form is open")

// ErrSubmissionInFlight is returned when a submission arrives while an
// earlier one is still being scored.
var ErrSubmissionInFlight = fmt.Errorf("submission already in flight")

// SubmitAssessment sends the filled-in form for scoring. On success the
// result is appended as a single assistant message and the form closes.
// On failure no message is appended and the form stays open so the
// person may retry; the error is a recoverable outcome, never a panic.
func (e *Engine) SubmitAssessment(ctx context.Context, report domain.SymptomReport) (domain.Message, error) {
	e.mu.Lock()
	if e.formState != FormOpen {
		state := e.formState
		e.mu.Unlock()
		if state == FormSubmitting {
			return domain.Message{}, ErrSubmissionInFlight
		}
		return domain.Message{}, ErrNoOpenForm
	}
	e.formState = FormSubmitting
	e.mu.Unlock()

	identity := e.sessions.Current().Username

	result, err := e.gw.SubmitSymptoms(ctx, report, identity)
	if err != nil {
		e.mu.Lock()
		e.formState = FormOpen
		e.mu.Unlock()
		e.logger.Warn("assessment submission failed, form stays open", "error", err)
		return domain.Message{}, fmt.Errorf("submit assessment: %w", err)
	}

	msg := e.newMessage(FormatResult(result), domain.SenderAssistant)
	e.append(msg)

	e.mu.Lock()
	e.formState = FormClosed
	e.mu.Unlock()
	e.emit(Event{Type: EventFormClosed})

	e.logger.Info("assessment complete", "severity", int(result.Severity), "username", identity)
	return msg, nil
}

// FormatResult renders an assessment result as a single assistant
// message: severity, recommendation, then a 1-indexed resource list.
func FormatResult(result domain.AssessmentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on your symptoms, your asthma severity level is: %d.\n\n%s",
		int(result.Severity), result.Recommendation)

	if len(result.Resources) > 0 {
		b.WriteString("\n\nHelpful resources:")
		for i, res := range result.Resources {
			fmt.Fprintf(&b, "\n%d. %s: %s", i+1, res.Title, res.URL)
		}
	}
	return b.String()
}

func (e *Engine) newMessage(content string, sender domain.Sender) domain.Message {
	now := e.now()
	return domain.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: now.Format("03:04 PM"),
		CreatedAt: now,
	}
}

func (e *Engine) append(msg domain.Message) {
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	e.mu.Unlock()

	e.emit(Event{Type: EventMessageAppended, Message: &msg})
}

func (e *Engine) startTyping() {
	e.mu.Lock()
	e.typing++
	e.mu.Unlock()
	e.emit(Event{Type: EventTypingStarted})
}

func (e *Engine) stopTyping() {
	e.mu.Lock()
	if e.typing > 0 {
		e.typing--
	}
	e.mu.Unlock()
	e.emit(Event{Type: EventTypingStopped})
}

func (e *Engine) randIndex(n int) int {
	idx := int(e.randFloat() * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
