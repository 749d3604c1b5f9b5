package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/controller"
	"github.com/gennadis/virtualparent/internal/kv"
	"github.com/gennadis/virtualparent/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererStreamsReplies(t *testing.T) {
	registry := session.NewRegistry(kv.NewMemory())
	id, err := registry.Create()
	require.NoError(t, err)
	require.NoError(t, registry.Rename(id, "Homework"))

	var buf bytes.Buffer
	r := newRenderer(context.Background(), &buf, registry, nil)

	greeting := chat.Message{SessionID: id, Content: "Hi sweetheart!"}
	question := chat.Message{SessionID: id, Content: "Help with maths?", IsUser: true}
	answer := chat.Message{SessionID: id, Content: "Of course, let's go."}

	r.Update(controller.View{SessionID: id, State: controller.StateLoading})
	r.Update(controller.View{SessionID: id, State: controller.StateIdle, Transcript: []chat.Message{greeting}})
	r.Update(controller.View{SessionID: id, State: controller.StateSending, Transcript: []chat.Message{greeting, question}})
	r.Update(controller.View{SessionID: id, State: controller.StateStreaming, Transcript: []chat.Message{greeting, question}, Pending: "Of course, "})
	r.Update(controller.View{SessionID: id, State: controller.StateStreaming, Transcript: []chat.Message{greeting, question}, Pending: "Of course, let's go."})
	r.Update(controller.View{SessionID: id, State: controller.StateIdle, Transcript: []chat.Message{greeting, question, answer}})

	out := buf.String()
	assert.Contains(t, out, "── Homework ──")
	assert.Contains(t, out, "Hi sweetheart!")
	assert.Contains(t, out, parentLabel+"Of course, let's go.\n")
	assert.NotContains(t, out, "Help with maths?", "typed input is not echoed")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("let's go.")))
}

func TestRendererReplaysHistoryOnSwitch(t *testing.T) {
	registry := session.NewRegistry(kv.NewMemory())
	var buf bytes.Buffer
	r := newRenderer(context.Background(), &buf, registry, nil)

	history := []chat.Message{
		{SessionID: "b", Content: "Earlier question", IsUser: true},
		{SessionID: "b", Content: "Earlier answer"},
	}
	r.Update(controller.View{SessionID: "b", State: controller.StateIdle, Transcript: history})

	out := buf.String()
	assert.Contains(t, out, userLabel+"Earlier question")
	assert.Contains(t, out, "Earlier answer")
}

func TestRendererSettle(t *testing.T) {
	r := newRenderer(context.Background(), &bytes.Buffer{}, session.NewRegistry(kv.NewMemory()), nil)
	r.Update(controller.View{SessionID: "a", State: controller.StateSending})

	done := make(chan struct{})
	go func() {
		r.settle(context.Background())
		close(done)
	}()

	r.Update(controller.View{SessionID: "a", State: controller.StateIdle})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("settle did not return after idle view")
	}
}
