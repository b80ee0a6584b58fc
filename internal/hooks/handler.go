package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/model"
)

// OnFailure values for a hook's on_failure setting.
const (
	OnFailureWarn   = "warn"
	OnFailureIgnore = "ignore"
)

// Hook binds a topic pattern to a shell command.
type Hook struct {
	Name      string `toml:"name"`
	Topic     string `toml:"topic"`
	Command   string `toml:"command"`
	Timeout   int    `toml:"timeout,omitempty"`
	Dir       string `toml:"dir,omitempty"`
	OnFailure string `toml:"on_failure,omitempty"`
}

// File is the on-disk hooks configuration.
//
//	[[hook]]
//	name = "unlock"
//	topic = "paywall.purchase.completed"
//	command = "./bin/unlock"
type File struct {
	Hooks []Hook `toml:"hook"`
}

// LoadFile reads and validates a TOML hooks file.
func LoadFile(path string) ([]Hook, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("hooks: decode %s: %w", path, err)
	}
	for i, h := range f.Hooks {
		if h.Command == "" {
			return nil, fmt.Errorf("hooks: hook %d (%s): command is required", i, h.Name)
		}
		if h.Topic == "" {
			f.Hooks[i].Topic = events.TopicAll
		}
		switch h.OnFailure {
		case "", OnFailureWarn, OnFailureIgnore:
		default:
			return nil, fmt.Errorf("hooks: hook %d (%s): unknown on_failure %q", i, h.Name, h.OnFailure)
		}
	}
	return f.Hooks, nil
}

// Outcome records one hook invocation.
type Outcome struct {
	Hook     string `json:"hook"`
	OK       bool   `json:"ok"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

// Handler runs the configured hooks for each ledger event it receives.
type Handler struct {
	hooks  []Hook
	logger *slog.Logger
}

// NewHandler creates a hook handler for the given hooks.
func NewHandler(hooks []Hook, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hooks: hooks, logger: logger}
}

// HandleEvent runs every hook whose topic pattern matches the event, in
// configuration order. The event JSON is piped to the command's stdin and
// its identifiers are exported as PAYWALL_* environment variables.
func (h *Handler) HandleEvent(ctx context.Context, ev *model.Event) []Outcome {
	if ev == nil || ev.Topic == "" {
		return nil
	}

	var outcomes []Outcome
	var body []byte
	for _, hook := range h.hooks {
		if !events.MatchTopic(hook.Topic, ev.Topic) {
			continue
		}
		if body == nil {
			var err error
			if body, err = json.Marshal(ev); err != nil {
				h.logger.Error("hooks: marshal event", "topic", ev.Topic, "err", err)
				return outcomes
			}
		}

		env := map[string]string{
			"PAYWALL_TOPIC":   ev.Topic,
			"PAYWALL_TX_ID":   ev.TxID,
			"PAYWALL_ACCOUNT": ev.Account.String(),
			"PAYWALL_ACTOR":   ev.Actor.String(),
		}
		result := Execute(ctx, Invocation{
			Command: hook.Command,
			Timeout: time.Duration(hook.Timeout) * time.Second,
			Dir:     hook.Dir,
			Env:     env,
			Stdin:   body,
		})
		outcomes = append(outcomes, Outcome{
			Hook:     hook.Name,
			OK:       result.Err == nil,
			ExitCode: result.ExitCode,
			Output:   result.Output,
		})

		if result.Err != nil && hook.OnFailure != OnFailureIgnore {
			h.logger.Warn("hooks: hook failed",
				"hook", hook.Name, "topic", ev.Topic, "exit", result.ExitCode,
				"timed_out", result.TimedOut, "err", result.Err, "output", result.Output)
			continue
		}
		h.logger.Info("hooks: executed hook",
			"hook", hook.Name, "topic", ev.Topic, "account", ev.Account.Short(8),
			"ok", result.Err == nil, "duration", result.Duration)
	}
	return outcomes
}

// StartSubscriber listens for ledger events on the event bus and runs
// matching hooks. It blocks until ctx is cancelled.
func (h *Handler) StartSubscriber(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("hooks: subscribe: %w", err)
	}
	defer cancel()

	h.logger.Info("hooks: subscriber started", "hooks", len(h.hooks))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hooks: subscriber stopping")
			return nil
		case ev, ok := <-ch:
			if !ok {
				h.logger.Info("hooks: subscription channel closed")
				return nil
			}
			h.HandleEvent(ctx, ev)
		}
	}
}
