package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/quill-ai/go-quill/pkg/quill"
)

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return f.err
}
func (f failingStore) Delete(context.Context, string) error           { return f.err }
func (f failingStore) List(context.Context, string) ([]string, error) { return nil, f.err }

// ttlRecorder captures the ttl passed to Set.
type ttlRecorder struct {
	*InMemoryStore
	ttls []time.Duration
}

func (r *ttlRecorder) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.ttls = append(r.ttls, ttl)
	return r.InMemoryStore.Set(ctx, key, value, ttl)
}

func newConvStore(t *testing.T) *InMemoryStore {
	t.Helper()
	s := NewInMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConversation_SaveAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	conv := NewConversation(newConvStore(t))

	if h, err := conv.History(ctx, "s1"); err != nil || len(h) != 0 {
		t.Fatalf("History(new) = %v, %v", h, err)
	}

	_ = conv.Save(ctx, "s1", "Who is Mara?", "The ferryman's daughter.")
	_ = conv.Save(ctx, "s1", "Where does she live?", "By the river.")

	h, err := conv.History(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	want := []Exchange{
		{Input: "Who is Mara?", Output: "The ferryman's daughter."},
		{Input: "Where does she live?", Output: "By the river."},
	}
	if !slices.Equal(h, want) {
		t.Errorf("History() = %v, want %v", h, want)
	}

	other, _ := conv.History(ctx, "s2")
	if len(other) != 0 {
		t.Errorf("sessions leaked into each other: %v", other)
	}
}

func TestConversation_Window(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	conv := NewConversation(newConvStore(t))

	for i := 0; i < 8; i++ {
		_ = conv.Save(ctx, "s", string(rune('a'+i)), "ok")
	}

	h, _ := conv.History(ctx, "s")
	if len(h) != DefaultWindow {
		t.Fatalf("kept %d exchanges, want %d", len(h), DefaultWindow)
	}
	if h[0].Input != "d" || h[len(h)-1].Input != "h" {
		t.Errorf("window = %v, want d..h", h)
	}

	small := NewConversation(newConvStore(t), WithWindow(2), WithWindow(0))
	for _, in := range []string{"1", "2", "3"} {
		_ = small.Save(ctx, "s", in, "ok")
	}
	if h, _ := small.History(ctx, "s"); len(h) != 2 || h[0].Input != "2" {
		t.Errorf("WithWindow(2) history = %v", h)
	}
}

func TestConversation_TTLRefreshedOnSave(t *testing.T) {
	t.Parallel()

	rec := &ttlRecorder{InMemoryStore: newConvStore(t)}
	conv := NewConversation(rec, WithTTL(30*time.Minute))

	ctx := context.Background()
	_ = conv.Save(ctx, "s", "q1", "a1")
	_ = conv.Save(ctx, "s", "q2", "a2")

	if !slices.Equal(rec.ttls, []time.Duration{30 * time.Minute, 30 * time.Minute}) {
		t.Errorf("ttls = %v", rec.ttls)
	}
}

func TestConversation_Expiry(t *testing.T) {
	t.Parallel()

	store := newConvStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	conv := NewConversation(store)
	ctx := context.Background()
	_ = conv.Save(ctx, "s", "q", "a")

	now = now.Add(DefaultTTL + time.Second)
	if h, _ := conv.History(ctx, "s"); len(h) != 0 {
		t.Errorf("History() after TTL = %v", h)
	}
}

func TestConversation_CorruptData(t *testing.T) {
	t.Parallel()

	store := newConvStore(t)
	ctx := context.Background()
	_ = store.Set(ctx, Key("s"), []byte("{not json"), 0)

	conv := NewConversation(store)
	h, err := conv.History(ctx, "s")
	if err != nil || len(h) != 0 {
		t.Errorf("History(corrupt) = %v, %v; want empty, nil", h, err)
	}
	if err := conv.Save(ctx, "s", "q", "a"); err != nil {
		t.Fatalf("Save() over corrupt data error = %v", err)
	}
	if h, _ := conv.History(ctx, "s"); len(h) != 1 {
		t.Errorf("History() = %v", h)
	}
}

func TestConversation_StoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	conv := NewConversation(failingStore{err: boom})
	ctx := context.Background()

	if _, err := conv.History(ctx, "s"); !errors.Is(err, boom) {
		t.Errorf("History() error = %v", err)
	}
	if err := conv.Save(ctx, "s", "q", "a"); !errors.Is(err, boom) {
		t.Errorf("Save() error = %v", err)
	}
}

func TestConversation_ClearAndSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	conv := NewConversation(newConvStore(t))
	_ = conv.Save(ctx, "alpha", "q", "a")
	_ = conv.Save(ctx, "beta", "q", "a")

	sessions, err := conv.Sessions(ctx)
	if err != nil || !slices.Equal(sessions, []string{"alpha", "beta"}) {
		t.Fatalf("Sessions() = %v, %v", sessions, err)
	}

	if err := conv.Clear(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if sessions, _ := conv.Sessions(ctx); !slices.Equal(sessions, []string{"beta"}) {
		t.Errorf("Sessions() after Clear = %v", sessions)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if Format(nil) != "" {
		t.Error("Format(nil) should be empty")
	}
	got := Format([]Exchange{{"hi", "hello"}, {"bye", "see you"}})
	want := "Human: hi\nAI: hello\nHuman: bye\nAI: see you"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestConversation_Output(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	conv := NewConversation(newConvStore(t))

	var out string
	err := quill.NewFlow().
		Use(conv.Output("s", "Describe the city")).
		Run(ctx, "A walled city of salt.", &out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "A walled city of salt." {
		t.Errorf("pass-through = %q", out)
	}

	rendered, _ := conv.Render(ctx, "s")
	if !strings.Contains(rendered, "Human: Describe the city\nAI: A walled city of salt.") {
		t.Errorf("Render() = %q", rendered)
	}

	// Empty output is not recorded.
	_ = quill.NewFlow().Use(conv.Output("empty", "q")).Run(ctx, "", nil)
	if h, _ := conv.History(ctx, "empty"); len(h) != 0 {
		t.Errorf("empty output recorded: %v", h)
	}
}
