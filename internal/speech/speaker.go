package speech

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Synthesizer speaks one utterance, returning when it is done or ctx ends.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

var emojiPattern = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{E000}-\x{F8FF}\x{FE0E}\x{FE0F}\x{200D}\x{20E3}]+`)

// StripEmoji removes emoji and pictographs from text.
func StripEmoji(text string) string {
	return strings.Join(strings.Fields(emojiPattern.ReplaceAllString(text, " ")), " ")
}

// Speaker plays one utterance at a time. A new utterance cancels the one in
// flight.
type Speaker struct {
	synth Synthesizer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSpeaker(synth Synthesizer) *Speaker {
	return &Speaker{synth: synth}
}

// Say cancels any in-flight utterance and starts speaking text without
// waiting for it to finish.
func (s *Speaker) Say(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()

	text = StripEmoji(text)
	if text == "" {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		if err := s.synth.Speak(ctx, text); err != nil && ctx.Err() == nil {
			slog.Error("Failed to speak", "error", err)
		}
	}()
}

// Stop cancels the in-flight utterance and waits for it to end.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
}

func (s *Speaker) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}
