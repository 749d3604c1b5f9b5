// Package controller drives the active chat session: it loads history on
// activation, sends user messages, assembles streamed replies and persists
// both sides of the conversation.
package controller

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/session"
)

// ErrorContent is committed in place of a reply that came back empty.
const ErrorContent = "Sorry, I encountered an error. Please try again."

const DefaultContextWindow = 20

type State int

const (
	StateIdle State = iota
	StateLoading
	StateSending
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// HistoryStore persists transcripts. Implementations swallow their own
// failures.
type HistoryStore interface {
	SaveMessage(ctx context.Context, sessionID, content string, isUser bool)
	FetchHistory(ctx context.Context, sessionID string) []chat.Message
}

// Completer produces assistant replies.
type Completer interface {
	Respond(ctx context.Context, messages []chat.ChatMessage, mode chat.ResponseMode) iter.Seq[string]
	Greeting(ctx context.Context) string
}

// View is a snapshot of the controller state.
type View struct {
	SessionID  string
	Transcript []chat.Message
	Pending    string
	State      State
	Queued     int
}

// Observer receives a View after every state change. Update runs on the
// goroutine that made the change and must not call back into mutating
// Controller methods.
type Observer interface {
	Update(View)
}

type ObserverFunc func(View)

func (f ObserverFunc) Update(v View) { f(v) }

type Option func(*Controller)

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

func WithMode(mode chat.ResponseMode) Option {
	return func(c *Controller) { c.mode = mode }
}

// WithContextWindow limits how many trailing transcript messages are sent as
// completion context. Zero or less sends the whole transcript.
func WithContextWindow(n int) Option {
	return func(c *Controller) { c.contextWindow = n }
}

type Controller struct {
	registry      *session.Registry
	history       HistoryStore
	completer     Completer
	observer      Observer
	mode          chat.ResponseMode
	contextWindow int
	now           func() time.Time

	mu         sync.Mutex
	activeID   string
	epoch      uint64
	transcript []chat.Message
	pending    string
	state      State
	queue      []string
	lastSave   chan struct{}

	notifyMu sync.Mutex
	wg       sync.WaitGroup
}

func New(registry *session.Registry, history HistoryStore, completer Completer, opts ...Option) *Controller {
	c := &Controller{
		registry:      registry,
		history:       history,
		completer:     completer,
		mode:          chat.ModeShort,
		contextWindow: DefaultContextWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start activates the persisted active session, creating one if needed.
func (c *Controller) Start(ctx context.Context) error {
	id, err := c.registry.ActiveID()
	if err != nil {
		return err
	}
	c.activate(ctx, id)
	return nil
}

// SendMessage submits user input. Blank input is rejected. Input arriving
// while a previous exchange or a history load is in progress is queued and
// sent in order.
func (c *Controller) SendMessage(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	c.mu.Lock()
	if c.activeID == "" {
		c.mu.Unlock()
		slog.Warn("message dropped, no active session")
		return false
	}
	if c.state != StateIdle {
		c.queue = append(c.queue, text)
	} else {
		c.send(ctx, text)
	}
	c.mu.Unlock()

	c.notify()
	return true
}

// SwitchSession makes id the active session and loads its history. Switching
// to the already active session does nothing.
func (c *Controller) SwitchSession(ctx context.Context, id string) error {
	c.mu.Lock()
	current := c.activeID
	c.mu.Unlock()
	if id == current {
		return nil
	}

	if err := c.registry.SetActive(id); err != nil {
		return err
	}
	c.activate(ctx, id)
	return nil
}

// NewSession creates a session and activates it.
func (c *Controller) NewSession(ctx context.Context) (string, error) {
	id, err := c.registry.Create()
	if err != nil {
		return "", err
	}
	c.activate(ctx, id)
	return id, nil
}

func (c *Controller) RenameSession(id, name string) error {
	if err := c.registry.Rename(id, name); err != nil {
		return err
	}
	c.notify()
	return nil
}

// DeleteSession removes a session. When it was active, the newest remaining
// session is activated, or a fresh one is created.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	if err := c.registry.Delete(id); err != nil {
		return err
	}

	c.mu.Lock()
	wasActive := id == c.activeID
	c.mu.Unlock()
	if !wasActive {
		c.notify()
		return nil
	}

	sessions, err := c.registry.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, err := c.NewSession(ctx)
		return err
	}
	if err := c.registry.SetActive(sessions[0].ID); err != nil {
		return err
	}
	c.activate(ctx, sessions[0].ID)
	return nil
}

func (c *Controller) Sessions() ([]chat.Session, error) {
	return c.registry.List()
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return View{
		SessionID:  c.activeID,
		Transcript: append([]chat.Message(nil), c.transcript...),
		Pending:    c.pending,
		State:      c.state,
		Queued:     len(c.queue),
	}
}

// Wait blocks until all background loads, exchanges and saves have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) activate(ctx context.Context, id string) {
	c.mu.Lock()
	c.activeID = id
	c.epoch++
	epoch := c.epoch
	c.transcript = nil
	c.pending = ""
	c.queue = nil
	c.state = StateLoading
	c.mu.Unlock()

	slog.Debug("session activated", slog.String("session_id", id))
	c.notify()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.load(ctx, id, epoch)
	}()
}

func (c *Controller) load(ctx context.Context, id string, epoch uint64) {
	messages := c.history.FetchHistory(ctx, id)

	if len(messages) == 0 {
		if !c.current(id, epoch) {
			return
		}
		greeting := chat.Message{
			SessionID: id,
			Content:   c.completer.Greeting(ctx),
			IsUser:    false,
			Timestamp: c.now(),
		}
		messages = []chat.Message{greeting}

		c.mu.Lock()
		if !c.isCurrent(id, epoch) {
			c.mu.Unlock()
			return
		}
		c.persist(ctx, greeting)
		c.mu.Unlock()
	}

	c.mu.Lock()
	if !c.isCurrent(id, epoch) {
		c.mu.Unlock()
		return
	}
	c.transcript = messages
	c.state = StateIdle
	c.next(ctx)
	c.mu.Unlock()

	c.notify()
}

// send appends the user message and starts the exchange. c.mu must be held.
func (c *Controller) send(ctx context.Context, text string) {
	message := chat.Message{
		SessionID: c.activeID,
		Content:   text,
		IsUser:    true,
		Timestamp: c.now(),
	}
	c.transcript = append(c.transcript, message)
	c.state = StateSending
	c.persist(ctx, message)

	id, epoch := c.activeID, c.epoch
	prompt := chat.ToChatMessages(tail(c.transcript, c.contextWindow))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.exchange(ctx, id, epoch, prompt)
	}()
}

func (c *Controller) exchange(ctx context.Context, id string, epoch uint64, prompt []chat.ChatMessage) {
	var reply strings.Builder
	for fragment := range c.completer.Respond(ctx, prompt, c.mode) {
		reply.WriteString(fragment)

		c.mu.Lock()
		fresh := c.isCurrent(id, epoch)
		if fresh {
			c.pending = reply.String()
			c.state = StateStreaming
		}
		c.mu.Unlock()

		if fresh {
			c.notify()
		}
	}

	content := reply.String()
	if strings.TrimSpace(content) == "" {
		content = ErrorContent
	}
	message := chat.Message{
		SessionID: id,
		Content:   content,
		IsUser:    false,
		Timestamp: c.now(),
	}

	c.mu.Lock()
	c.persist(ctx, message)
	if !c.isCurrent(id, epoch) {
		c.mu.Unlock()
		slog.Debug("reply for inactive session persisted only", slog.String("session_id", id))
		return
	}
	c.transcript = append(c.transcript, message)
	c.pending = ""
	c.state = StateIdle
	c.next(ctx)
	c.mu.Unlock()

	c.notify()
}

// next sends the oldest queued input, if any. c.mu must be held.
func (c *Controller) next(ctx context.Context) {
	if len(c.queue) == 0 {
		return
	}
	text := c.queue[0]
	c.queue = c.queue[1:]
	c.send(ctx, text)
}

// persist saves message in the background. Saves run one at a time in the
// order persist is called, so the service assigns ascending timestamps.
// Cancelling ctx does not drop a save that is already scheduled.
// c.mu must be held.
func (c *Controller) persist(ctx context.Context, message chat.Message) {
	ctx = context.WithoutCancel(ctx)
	prev := c.lastSave
	done := make(chan struct{})
	c.lastSave = done

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		c.history.SaveMessage(ctx, message.SessionID, message.Content, message.IsUser)
	}()
}

func (c *Controller) current(id string, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCurrent(id, epoch)
}

// isCurrent reports whether work started for (id, epoch) still owns the
// view. c.mu must be held.
func (c *Controller) isCurrent(id string, epoch uint64) bool {
	return c.activeID == id && c.epoch == epoch
}

func (c *Controller) notify() {
	if c.observer == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.observer.Update(c.View())
}

func tail(messages []chat.Message, n int) []chat.Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
