package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/controller"
	"github.com/gennadis/virtualparent/internal/session"
	"github.com/gennadis/virtualparent/internal/speech"
)

const (
	userLabel   = "you› "
	parentLabel = "parent› "
)

// renderer prints controller views as a scrolling transcript. Replies are
// printed as they stream in.
type renderer struct {
	ctx      context.Context
	out      io.Writer
	registry *session.Registry
	speaker  *speech.Speaker
	speak    atomic.Bool

	mu        sync.Mutex
	sessionID string
	replaying bool
	printed   int
	streamed  int
	state     controller.State

	idle chan struct{}
}

var _ controller.Observer = (*renderer)(nil)

func newRenderer(ctx context.Context, out io.Writer, registry *session.Registry, speaker *speech.Speaker) *renderer {
	return &renderer{
		ctx:      ctx,
		out:      out,
		registry: registry,
		speaker:  speaker,
		idle:     make(chan struct{}, 1),
	}
}

func (r *renderer) Update(v controller.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.SessionID != r.sessionID {
		r.sessionID = v.SessionID
		r.printed, r.streamed = 0, 0
		r.replaying = true
		r.header(v.SessionID)
	}
	r.state = v.State

	if v.State == controller.StateLoading {
		return
	}
	if r.replaying {
		r.replaying = false
		for _, m := range v.Transcript {
			r.message(m)
		}
		r.printed = len(v.Transcript)
	}

	if len(v.Pending) > r.streamed {
		if r.streamed == 0 {
			fmt.Fprint(r.out, parentStyle.Render(parentLabel))
		}
		fmt.Fprint(r.out, replyStyle.Render(v.Pending[r.streamed:]))
		r.streamed = len(v.Pending)
	}

	if r.printed < len(v.Transcript) {
		for _, m := range v.Transcript[r.printed:] {
			if m.IsUser {
				continue
			}
			if r.streamed > 0 {
				fmt.Fprintln(r.out)
				r.streamed = 0
			} else {
				r.message(m)
			}
			if r.speak.Load() && r.speaker != nil {
				r.speaker.Say(r.ctx, m.Content)
			}
		}
		r.printed = len(v.Transcript)
	}

	if v.State == controller.StateIdle {
		select {
		case r.idle <- struct{}{}:
		default:
		}
	}
}

// settle blocks until the last rendered view is idle.
func (r *renderer) settle(ctx context.Context) {
	for r.currentState() != controller.StateIdle {
		select {
		case <-r.idle:
		case <-ctx.Done():
			return
		}
	}
}

func (r *renderer) currentState() controller.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *renderer) header(id string) {
	name := id
	if s, err := r.registry.Get(id); err == nil {
		name = s.DisplayName()
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, headerStyle.Render("── "+name+" ──"))
}

func (r *renderer) message(m chat.Message) {
	if m.IsUser {
		fmt.Fprintln(r.out, userStyle.Render(userLabel)+m.Content)
		return
	}
	fmt.Fprintln(r.out, parentStyle.Render(parentLabel)+replyStyle.Render(m.Content))
}
