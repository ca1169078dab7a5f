package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/xraph/cadence/job"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition("send-email", func(_ context.Context, p emailPayload) (any, error) {
		got = p
		return map[string]string{"status": "sent"}, nil
	})
	job.RegisterDefinition(r, def)

	e, ok := r.Get(job.TypeSimple, "send-email")
	if !ok {
		t.Fatal("expected definition to be registered")
	}
	if e.Opts.Concurrency != job.ModeConcurrent {
		t.Errorf("Concurrency = %q, want concurrent by default", e.Opts.Concurrency)
	}

	payload, _ := json.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	result, err := e.Handler(context.Background(), &job.Job{Payload: payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" || got.Subject != "Hello" {
		t.Errorf("payload = %+v", got)
	}
	if m, ok := result.(map[string]string); !ok || m["status"] != "sent" {
		t.Errorf("result = %v", result)
	}

	if _, ok := r.Get(job.TypeCronTask, "send-email"); ok {
		t.Error("simple definition visible as cron task")
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed-job", func(_ context.Context, _ emailPayload) (any, error) {
		t.Fatal("handler should not be called with invalid JSON")
		return nil, nil
	}))

	e, _ := r.Get(job.TypeSimple, "typed-job")
	if _, err := e.Handler(context.Background(), &job.Job{Payload: []byte(`{invalid json`)}); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition("no-payload", func(_ context.Context, _ struct{}) (any, error) {
		called = true
		return nil, nil
	}))

	e, _ := r.Get(job.TypeSimple, "no-payload")
	if _, err := e.Handler(context.Background(), &job.Job{Payload: json.RawMessage("null")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("handler failed")
	job.RegisterDefinition(r, job.NewDefinition("failing", func(_ context.Context, _ struct{}) (any, error) {
		return nil, want
	}))

	e, _ := r.Get(job.TypeSimple, "failing")
	if _, err := e.Handler(context.Background(), &job.Job{}); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRegistry_Options(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("exclusive", func(_ context.Context, _ struct{}) (any, error) { return nil, nil },
		job.WithConcurrency(job.ModeExclusive),
		job.WithResumable(),
		job.WithTag("billing"),
	))

	e, _ := r.Get(job.TypeSimple, "exclusive")
	if e.Opts.Concurrency != job.ModeExclusive || !e.Opts.Resumable || e.Opts.Tag != "billing" {
		t.Errorf("Opts = %+v", e.Opts)
	}
	if got := r.ConcurrencyFor(job.TypeSimple, "exclusive"); got != job.ModeExclusive {
		t.Errorf("ConcurrencyFor = %q, want exclusive", got)
	}
	if got := r.ConcurrencyFor(job.TypeSimple, "unknown"); got != job.ModeConcurrent {
		t.Errorf("ConcurrencyFor(unknown) = %q, want concurrent", got)
	}
}

func TestRegistry_Scope(t *testing.T) {
	r := job.NewRegistry()
	noop := func(_ context.Context, _ struct{}) (any, error) { return nil, nil }
	job.RegisterDefinition(r, job.NewDefinition("untagged", noop))
	job.RegisterDefinition(r, job.NewDefinition("billing", noop, job.WithTag("billing")))
	job.RegisterDefinition(r, job.NewDefinition("mail", noop, job.WithTag("mail")))
	r.Register(&job.Entry{Type: job.TypeCronTask, Name: "nightly", Opts: job.Options{Tag: "billing"}})
	r.Register(&job.Entry{Type: job.TypeCronTask, Name: "hourly", Opts: job.Options{Tag: "mail"}})

	all := r.Scope(nil)
	if !all.All {
		t.Fatal("nil tags should select every definition")
	}

	s := r.Scope([]string{"billing"})
	if s.All {
		t.Fatal("tagged scope should not select everything")
	}
	if !slices.Equal(s.SimpleNames, []string{"billing", "untagged"}) {
		t.Errorf("SimpleNames = %v", s.SimpleNames)
	}
	if !slices.Equal(s.CronTaskNames, []string{"nightly"}) {
		t.Errorf("CronTaskNames = %v", s.CronTaskNames)
	}

	tests := []struct {
		j    *job.Job
		want bool
	}{
		{&job.Job{Type: job.TypeSimple, Name: "untagged"}, true},
		{&job.Job{Type: job.TypeSimple, Name: "mail"}, false},
		{&job.Job{Type: job.TypeCronTask, Name: "nightly"}, true},
		{&job.Job{Type: job.TypeCronTask, Name: "billing"}, false},
		{&job.Job{Type: job.TypeCron, Name: "nightly"}, false},
	}
	for _, tt := range tests {
		if got := s.Matches(tt.j); got != tt.want {
			t.Errorf("Matches(%s %s) = %v, want %v", tt.j.Type, tt.j.Name, got, tt.want)
		}
	}

	if r.Scope([]string{"nothing"}).Empty() {
		t.Error("scope with untagged definitions should not be empty")
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range job.ActiveStatuses {
		if !s.IsActive() || s.IsTerminal() {
			t.Errorf("%q should be active and not terminal", s)
		}
	}
	for _, s := range []job.Status{job.StatusFinished, job.StatusErrored, job.StatusKilled, job.StatusSkipped} {
		if s.IsActive() || !s.IsTerminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
}
