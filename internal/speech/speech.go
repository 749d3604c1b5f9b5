// Package speech handles voice input and output for the chat.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Recognizer error codes.
const (
	CodeNotAllowed        = "not-allowed"
	CodeServiceNotAllowed = "service-not-allowed"
	CodeNoSpeech          = "no-speech"
)

type Kind int

const (
	KindOther Kind = iota
	KindPermissionDenied
	KindNoSpeech
)

// Error is a classified recognition failure. Its message is meant for the
// user.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

// NewError classifies a recognizer error code.
func NewError(code string, err error) *Error {
	kind := KindOther
	switch code {
	case CodeNotAllowed, CodeServiceNotAllowed:
		kind = KindPermissionDenied
	case CodeNoSpeech:
		kind = KindNoSpeech
	}
	return &Error{Kind: kind, Code: code, Err: err}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Microphone access denied. Please allow microphone access in your settings."
	case KindNoSpeech:
		return "No speech detected. Please try again."
	default:
		return fmt.Sprintf("Speech recognition error: %s", e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Result is one recognition hypothesis.
type Result struct {
	Transcript string
	Final      bool
}

// Event carries the recognizer's result list. Results before ResultIndex
// were already reported.
type Event struct {
	ResultIndex int
	Results     []Result
}

// Recognizer runs a single recognition, delivering events to onEvent until
// speech ends. Failures are returned as *Error.
type Recognizer interface {
	Recognize(ctx context.Context, onEvent func(Event)) error
}

// Assembler accumulates final text and tracks the current interim text.
type Assembler struct {
	final   strings.Builder
	interim string
}

// Apply folds an event in and returns the text so far and the interim part.
func (a *Assembler) Apply(e Event) (final, interim string) {
	var in strings.Builder
	for i := max(e.ResultIndex, 0); i < len(e.Results); i++ {
		if e.Results[i].Final {
			a.final.WriteString(e.Results[i].Transcript)
		} else {
			in.WriteString(e.Results[i].Transcript)
		}
	}
	a.interim = in.String()
	return a.final.String(), a.interim
}

func (a *Assembler) Final() string { return a.final.String() }

func (a *Assembler) Interim() string { return a.interim }

// Dictate runs one recognition and returns the final text. onInterim, when
// set, sees the interim text after every event.
func Dictate(ctx context.Context, r Recognizer, onInterim func(string)) (string, error) {
	var a Assembler
	err := r.Recognize(ctx, func(e Event) {
		_, interim := a.Apply(e)
		if onInterim != nil {
			onInterim(interim)
		}
	})
	if err != nil {
		var speechErr *Error
		if errors.As(err, &speechErr) {
			return a.Final(), speechErr
		}
		return a.Final(), NewError(err.Error(), err)
	}
	return strings.TrimSpace(a.Final()), nil
}
