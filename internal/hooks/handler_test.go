package hooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func addr(b byte) model.Address {
	var a model.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func purchaseEvent() *model.Event {
	return &model.Event{
		ID:      7,
		TxID:    "tx-purchase",
		Topic:   events.TopicPurchased,
		Account: addr(1),
		Actor:   addr(2),
		Payload: json.RawMessage(`{"price":1000}`),
	}
}

func TestExecute_Timeout(t *testing.T) {
	start := time.Now()
	res := Execute(context.Background(), Invocation{Command: "sleep 5", Timeout: 200 * time.Millisecond})
	if res.Err == nil || !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", res.ExitCode)
	}
	if time.Since(start) > 4*time.Second {
		t.Errorf("timeout not enforced: took %v", time.Since(start))
	}
}

func TestExecute_StdinAndEnv(t *testing.T) {
	res := Execute(context.Background(), Invocation{
		Command: `printf '%s:' "$FOO"; cat`,
		Env:     map[string]string{"FOO": "bar"},
		Stdin:   []byte("payload"),
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Output != "bar:payload" || res.ExitCode != 0 {
		t.Errorf("got %+v, want output bar:payload and exit 0", res)
	}
}

func TestExecute_StderrFallback(t *testing.T) {
	res := Execute(context.Background(), Invocation{Command: "echo oops >&2; exit 3"})
	if res.Err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.Output != "oops" || res.ExitCode != 3 {
		t.Errorf("got %+v, want stderr text and exit 3", res)
	}
}

func TestExecute_Dir(t *testing.T) {
	dir := t.TempDir()
	res := Execute(context.Background(), Invocation{Command: "pwd", Dir: dir})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if want, _ := filepath.EvalSymlinks(dir); res.Output != dir && res.Output != want {
		t.Errorf("pwd = %q, want %q", res.Output, dir)
	}

	res = Execute(context.Background(), Invocation{Command: "true", Dir: filepath.Join(dir, "missing")})
	if res.Err == nil || !strings.Contains(res.Err.Error(), "not a directory") {
		t.Errorf("expected missing dir error, got %v", res.Err)
	}
}

func TestExecute_OutputCapped(t *testing.T) {
	res := Execute(context.Background(), Invocation{Command: "head -c 20000 /dev/zero | tr '\\0' x"})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !strings.HasSuffix(res.Output, "[truncated]") {
		t.Fatalf("output not marked truncated: %d bytes", len(res.Output))
	}
	if len(res.Output) > maxOutput+len(" [truncated]") {
		t.Errorf("output = %d bytes, want at most %d", len(res.Output), maxOutput)
	}
}

func TestHandleEvent_NoHooks(t *testing.T) {
	h := NewHandler(nil, testLogger())
	if got := h.HandleEvent(context.Background(), purchaseEvent()); len(got) != 0 {
		t.Errorf("expected no outcomes, got %+v", got)
	}
	if got := h.HandleEvent(context.Background(), nil); got != nil {
		t.Errorf("expected nil for nil event, got %+v", got)
	}
}

func TestHandleEvent_TopicMatching(t *testing.T) {
	h := NewHandler([]Hook{
		{Name: "exact", Topic: events.TopicPurchased, Command: "echo exact"},
		{Name: "wildcard", Topic: "paywall.purchase.*", Command: "echo wildcard"},
		{Name: "all", Topic: events.TopicAll, Command: "echo all"},
		{Name: "other", Topic: events.TopicArticleCreated, Command: "echo other"},
	}, testLogger())

	got := h.HandleEvent(context.Background(), purchaseEvent())
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d: %+v", len(got), got)
	}
	for i, want := range []string{"exact", "wildcard", "all"} {
		if got[i].Hook != want || !got[i].OK || got[i].Output != want {
			t.Errorf("outcome %d = %+v, want hook %q", i, got[i], want)
		}
	}
}

func TestHandleEvent_ReceivesEvent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "event.json")
	h := NewHandler([]Hook{{
		Name:    "capture",
		Topic:   events.TopicPurchased,
		Command: `echo "$PAYWALL_TOPIC $PAYWALL_TX_ID $PAYWALL_ACCOUNT $PAYWALL_ACTOR"; cat > ` + out,
	}}, testLogger())

	ev := purchaseEvent()
	got := h.HandleEvent(context.Background(), ev)
	if len(got) != 1 || !got[0].OK {
		t.Fatalf("outcomes = %+v", got)
	}
	wantEnv := strings.Join([]string{ev.Topic, ev.TxID, ev.Account.String(), ev.Actor.String()}, " ")
	if got[0].Output != wantEnv {
		t.Errorf("env output = %q, want %q", got[0].Output, wantEnv)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read captured stdin: %v", err)
	}
	var back model.Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("stdin is not an event: %v", err)
	}
	if back.TxID != ev.TxID || back.Account != ev.Account || string(back.Payload) != `{"price":1000}` {
		t.Errorf("stdin event = %+v", back)
	}
}

func TestHandleEvent_FailureContinues(t *testing.T) {
	h := NewHandler([]Hook{
		{Name: "fails", Topic: events.TopicAll, Command: "exit 1", OnFailure: OnFailureWarn},
		{Name: "quiet", Topic: events.TopicAll, Command: "exit 2", OnFailure: OnFailureIgnore},
		{Name: "runs", Topic: events.TopicAll, Command: "echo ok"},
	}, testLogger())

	got := h.HandleEvent(context.Background(), purchaseEvent())
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	if got[0].OK || got[1].OK || !got[2].OK {
		t.Errorf("outcomes = %+v", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.toml")
	content := `
[[hook]]
name = "unlock"
topic = "paywall.purchase.completed"
command = "./unlock.sh"
timeout = 10

[[hook]]
name = "audit"
command = "logger paywall"
on_failure = "ignore"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	hooks, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].Topic != events.TopicPurchased || hooks[0].Timeout != 10 {
		t.Errorf("hook 0 = %+v", hooks[0])
	}
	if hooks[1].Topic != events.TopicAll {
		t.Errorf("hook 1 topic = %q, want default %q", hooks[1].Topic, events.TopicAll)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"missing-command": "[[hook]]\nname = \"x\"\n",
		"bad-on-failure":  "[[hook]]\ncommand = \"true\"\non_failure = \"block\"\n",
		"bad-toml":        "[[hook]\n",
	} {
		path := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadFile(filepath.Join(dir, "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// chanSubscriber feeds a fixed channel to StartSubscriber.
type chanSubscriber struct {
	ch    chan *model.Event
	topic string
}

func (s *chanSubscriber) Subscribe(topic string) (<-chan *model.Event, func(), error) {
	s.topic = topic
	return s.ch, func() {}, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestStartSubscriber(t *testing.T) {
	out := filepath.Join(t.TempDir(), "seen")
	h := NewHandler([]Hook{{
		Name:    "record",
		Topic:   events.TopicPurchased,
		Command: `echo "$PAYWALL_TX_ID" >> ` + out,
	}}, testLogger())

	sub := &chanSubscriber{ch: make(chan *model.Event, 4)}
	other := purchaseEvent()
	other.Topic = events.TopicArticleCreated
	other.TxID = "tx-create"
	sub.ch <- other
	sub.ch <- purchaseEvent()
	close(sub.ch)

	if err := h.StartSubscriber(context.Background(), sub); err != nil {
		t.Fatalf("StartSubscriber: %v", err)
	}
	if sub.topic != events.TopicAll {
		t.Errorf("subscribed to %q, want %q", sub.topic, events.TopicAll)
	}
	seen, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	if strings.TrimSpace(string(seen)) != "tx-purchase" {
		t.Errorf("seen = %q", seen)
	}
}

func TestStartSubscriber_StopsOnCancel(t *testing.T) {
	h := NewHandler(nil, testLogger())
	sub := &chanSubscriber{ch: make(chan *model.Event)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.StartSubscriber(ctx, sub) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
