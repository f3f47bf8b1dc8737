package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/ai"
	"github.com/chatvault/chatvault/internal/chat"
)

type fakeCompleter struct {
	response string
	err      error
	got      []chat.Message
}

func (f *fakeCompleter) Complete(_ context.Context, history []chat.Message) (string, error) {
	f.got = make([]chat.Message, len(history))
	copy(f.got, history)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func receive(t *testing.T, ch <-chan []chat.Message) []chat.Message {
	t.Helper()
	select {
	case history, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return history
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a history snapshot")
		return nil
	}
}

// receiveUntil reads snapshots until one has n messages. Duplicated snapshots
// are allowed by the replay-latest contract, so tests skip past them.
func receiveUntil(t *testing.T, ch <-chan []chat.Message, n int) []chat.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case history, ok := <-ch:
			require.True(t, ok, "subscription closed unexpectedly")
			if len(history) >= n {
				return history
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a history of %d messages", n)
			return nil
		}
	}
}

func TestSubscribe_DeliversCurrentHistoryImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPublisher(&fakeCompleter{})
	defer func() { require.NoError(t, p.Close()) }()

	sub, err := p.Subscribe(ctx)
	require.NoError(t, err)

	history := receive(t, sub)
	require.Len(t, history, 1)
	assert.Equal(t, chat.RoleSystem, history[0].Role)
	assert.Equal(t, SystemPreamble, history[0].Content)
}

func TestSend_AppendsUserAndAssistantMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completer := &fakeCompleter{response: "  42  "}
	p := NewPublisher(completer)
	defer func() { require.NoError(t, p.Close()) }()

	sub, err := p.Subscribe(ctx)
	require.NoError(t, err)
	_ = receive(t, sub) // seeded history

	require.NoError(t, p.Send(ctx, "meaning of life?"))

	history := receiveUntil(t, sub, 3)
	assert.Equal(t, chat.RoleUser, history[1].Role)
	assert.Equal(t, "meaning of life?", history[1].Content)
	assert.Equal(t, chat.RoleAssistant, history[2].Role)
	assert.Equal(t, "42", history[2].Content, "response must be trimmed")

	// The provider must see the full history including the new user message
	require.Len(t, completer.got, 2)
	assert.Equal(t, chat.RoleSystem, completer.got[0].Role)
	assert.Equal(t, "meaning of life?", completer.got[1].Content)
}

func TestSend_EmptyResponseUsesFallback(t *testing.T) {
	ctx := context.Background()

	p := NewPublisher(&fakeCompleter{response: "   "})
	defer func() { require.NoError(t, p.Close()) }()

	require.NoError(t, p.Send(ctx, "hello?"))

	history := p.History()
	require.Len(t, history, 3)
	assert.Equal(t, FallbackResponse, history[2].Content)
}

func TestSend_FailureKeepsUserMessage(t *testing.T) {
	ctx := context.Background()

	p := NewPublisher(&fakeCompleter{err: fmt.Errorf("provider down")})
	defer func() { require.NoError(t, p.Close()) }()

	err := p.Send(ctx, "anyone there?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrCompletionFailed)

	history := p.History()
	require.Len(t, history, 2, "the user message is not rolled back")
	assert.Equal(t, chat.RoleUser, history[1].Role)
	assert.Equal(t, "anyone there?", history[1].Content)
}

func TestSend_MultipleSubscribersSeeEveryUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPublisher(&fakeCompleter{response: "reply"})
	defer func() { require.NoError(t, p.Close()) }()

	first, err := p.Subscribe(ctx)
	require.NoError(t, err)
	second, err := p.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Send(ctx, "fan out"))

	for _, sub := range []<-chan []chat.Message{first, second} {
		history := receiveUntil(t, sub, 3)
		assert.Equal(t, "reply", history[2].Content)
	}
}

func TestHistory_ReturnsACopy(t *testing.T) {
	p := NewPublisher(&fakeCompleter{response: "r"})
	defer func() { require.NoError(t, p.Close()) }()

	history := p.History()
	history[0].Content = "tampered"

	assert.Equal(t, SystemPreamble, p.History()[0].Content)
}
