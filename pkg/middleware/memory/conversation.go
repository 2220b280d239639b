package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/quill-ai/go-quill/pkg/quill"
)

const (
	// DefaultWindow is how many exchanges a Conversation keeps.
	DefaultWindow = 5
	// DefaultTTL is how long an idle conversation survives.
	DefaultTTL = time.Hour

	keyPrefix = "chat_history:"
)

// Exchange is one user turn and the assistant's reply.
type Exchange struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Conversation is windowed chat history persisted in a Store.
//
// Only the last Window exchanges are kept. Every save refreshes the TTL, so a
// session expires after TTL of inactivity.
//
// Example:
//
//	conv := memory.NewConversation(store)
//	history, _ := conv.Render(ctx, sessionID)
//	// ... call the model with history ...
//	_ = conv.Save(ctx, sessionID, question, answer)
type Conversation struct {
	store  Store
	window int
	ttl    time.Duration
}

// ConversationOption customises a Conversation.
type ConversationOption func(*Conversation)

// WithWindow sets how many exchanges are kept. Values below 1 are ignored.
func WithWindow(k int) ConversationOption {
	return func(c *Conversation) {
		if k > 0 {
			c.window = k
		}
	}
}

// WithTTL sets the idle expiry. 0 disables expiry.
func WithTTL(ttl time.Duration) ConversationOption {
	return func(c *Conversation) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// NewConversation builds a Conversation over store.
func NewConversation(store Store, opts ...ConversationOption) *Conversation {
	c := &Conversation{store: store, window: DefaultWindow, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the store key used for session.
func Key(session string) string {
	return keyPrefix + session
}

// History returns the stored exchanges for session, oldest first. Unreadable
// data is treated as an empty history.
func (c *Conversation) History(ctx context.Context, session string) ([]Exchange, error) {
	data, err := c.store.Get(ctx, Key(session))
	if err != nil {
		return nil, quill.WrapErr(ctx, err, "failed to load conversation")
	}
	if data == nil {
		return nil, nil
	}

	var history []Exchange
	if err := json.Unmarshal(data, &history); err != nil {
		quill.LogWarn(ctx, "discarding unreadable conversation", "session", session, "error", err)
		return nil, nil
	}
	return history, nil
}

// Save appends an exchange, trims to the window and refreshes the TTL.
func (c *Conversation) Save(ctx context.Context, session, input, output string) error {
	history, err := c.History(ctx, session)
	if err != nil {
		return err
	}

	history = append(history, Exchange{Input: input, Output: output})
	if len(history) > c.window {
		history = history[len(history)-c.window:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return quill.WrapErr(ctx, err, "failed to encode conversation")
	}
	if err := c.store.Set(ctx, Key(session), data, c.ttl); err != nil {
		return quill.WrapErr(ctx, err, "failed to save conversation")
	}
	return nil
}

// Clear forgets session.
func (c *Conversation) Clear(ctx context.Context, session string) error {
	return c.store.Delete(ctx, Key(session))
}

// Sessions lists sessions that still have history.
func (c *Conversation) Sessions(ctx context.Context) ([]string, error) {
	keys, err := c.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, keyPrefix)
	}
	return keys, nil
}

// Render returns the history formatted for a prompt, or "" when empty.
func (c *Conversation) Render(ctx context.Context, session string) (string, error) {
	history, err := c.History(ctx, session)
	if err != nil {
		return "", err
	}
	return Format(history), nil
}

// Format renders exchanges as alternating Human/AI lines.
func Format(history []Exchange) string {
	var sb strings.Builder
	for i, ex := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "Human: %s\nAI: %s", ex.Input, ex.Output)
	}
	return sb.String()
}

// Output passes the stream through and, once it ends, saves it as the reply
// to input.
//
// Input: model output stream
// Output: same as input
// Behavior: STREAMING - tees while copying, saves at EOF
//
// Example:
//
//	flow.Use(ai.Agent(client)).Use(conv.Output(session, question))
func (c *Conversation) Output(session, input string) quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		var captured bytes.Buffer
		if _, err := io.Copy(res.Data, io.TeeReader(req.Data, &captured)); err != nil {
			return err
		}
		if captured.Len() == 0 {
			return nil
		}
		return c.Save(req.Context, session, input, captured.String())
	})
}
