package updateagent

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewValidatesCollaborators(t *testing.T) {
	base := Config{
		Store:     &stubStore{},
		Options:   newStubOptions(),
		Transport: newStubTransport(),
		Notifier:  &recordingNotifier{},
	}
	if _, err := New(base); err != nil {
		t.Fatalf("New with full config returned error: %v", err)
	}

	for name, mutate := range map[string]func(*Config){
		"store":     func(c *Config) { c.Store = nil },
		"options":   func(c *Config) { c.Options = nil },
		"transport": func(c *Config) { c.Transport = nil },
		"notifier":  func(c *Config) { c.Notifier = nil },
	} {
		cfg := base
		mutate(&cfg)
		if _, err := New(cfg); err == nil {
			t.Fatalf("New with nil %s should fail", name)
		}
	}
}

func TestEligibility(t *testing.T) {
	urls := UpdateURLs{Update: "https://a.example/1.meta.js"}
	enabled := &Script{Config: ScriptConfig{Enabled: true}}
	disabled := &Script{}

	cases := []struct {
		name        string
		script      *Script
		urls        UpdateURLs
		enabledOnly bool
		explicit    bool
		want        bool
	}{
		{"no urls never eligible", enabled, UpdateURLs{}, false, true, false},
		{"explicit bypasses enabled-only", disabled, urls, true, true, true},
		{"enabled script in bulk run", enabled, urls, true, false, true},
		{"disabled script excluded when enabled-only", disabled, urls, true, false, false},
		{"disabled script included when flag off", disabled, urls, false, false, true},
	}
	for _, tc := range cases {
		if got := eligible(tc.script, tc.urls, tc.enabledOnly, tc.explicit); got != tc.want {
			t.Errorf("%s: eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheckUpdateBulkSkipsDisabledScripts(t *testing.T) {
	enabled := noUpdateScript("a.example", 1)
	disabled := noUpdateScript("a.example", 2)
	disabled.Config.Enabled = false

	fx := newCheckerFixture(t, enabled, disabled)
	fx.options.setBool(OptUpdateEnabledScriptsOnly, true)
	fx.transport.respond(metaURL("a.example", 1), noUpdateDescriptor(1))
	fx.transport.respond(metaURL("a.example", 2), noUpdateDescriptor(2))

	if _, err := fx.checker.CheckUpdate(context.Background()); err != nil {
		t.Fatalf("CheckUpdate error: %v", err)
	}
	if got := fx.transport.callCount(metaURL("a.example", 1)); got != 1 {
		t.Fatalf("enabled script fetched %d times, want 1", got)
	}
	if got := fx.transport.callCount(metaURL("a.example", 2)); got != 0 {
		t.Fatalf("disabled script fetched %d times, want 0", got)
	}

	// The same disabled script participates when requested explicitly.
	if _, err := fx.checker.CheckUpdate(context.Background(), 2); err != nil {
		t.Fatalf("explicit CheckUpdate error: %v", err)
	}
	if got := fx.transport.callCount(metaURL("a.example", 2)); got != 1 {
		t.Fatalf("explicit check fetched %d times, want 1", got)
	}
}

func TestCheckUpdateSkipsScriptsWithoutURLs(t *testing.T) {
	bare := &Script{ID: 1, Meta: ScriptMeta{Name: "bare"}, Config: ScriptConfig{Enabled: true}}
	fx := newCheckerFixture(t, bare)

	count, err := fx.checker.CheckUpdate(context.Background())
	if err != nil {
		t.Fatalf("CheckUpdate error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 updates, got %d", count)
	}
	if calls := fx.transport.callOrder(); len(calls) != 0 {
		t.Fatalf("expected no fetches, got %v", calls)
	}
}

func TestCheckUpdateDeduplicatesConcurrentChecks(t *testing.T) {
	script := updatableScript("dedup.example", 1, "1.0.0")
	fx := newCheckerFixture(t, script)
	fx.transport.delay = 20 * time.Millisecond
	fx.transport.respond(script.Meta.UpdateURL, updateDescriptor(1, "2.0.0"))
	fx.transport.respond(script.Meta.DownloadURL, fullScript(1, "2.0.0"))

	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count, err := fx.checker.CheckUpdate(context.Background(), 1)
			if err != nil {
				t.Errorf("CheckUpdate error: %v", err)
				return
			}
			counts[i] = count
		}(i)
	}
	wg.Wait()

	if got := fx.transport.callCount(script.Meta.UpdateURL); got != 1 {
		t.Fatalf("descriptor fetched %d times, want 1", got)
	}
	if got := fx.transport.callCount(script.Meta.DownloadURL); got != 1 {
		t.Fatalf("payload fetched %d times, want 1", got)
	}
	if got := fx.store.persistCount(); got != 1 {
		t.Fatalf("persist called %d times, want 1", got)
	}
	if counts[0] != 1 || counts[1] != 1 {
		t.Fatalf("both checks should report the shared outcome, got %v", counts)
	}
}

func TestCheckUpdateStampsLastUpdateOnBulkRunsOnly(t *testing.T) {
	script := noUpdateScript("a.example", 1)
	fx := newCheckerFixture(t, script)
	fx.transport.respond(metaURL("a.example", 1), noUpdateDescriptor(1))

	if _, err := fx.checker.CheckUpdate(context.Background(), 1); err != nil {
		t.Fatalf("explicit CheckUpdate error: %v", err)
	}
	if got := fx.options.int64(OptLastUpdate); got != 0 {
		t.Fatalf("explicit check should not stamp last update, got %d", got)
	}

	before := time.Now().UnixMilli()
	if _, err := fx.checker.CheckUpdate(context.Background()); err != nil {
		t.Fatalf("bulk CheckUpdate error: %v", err)
	}
	if got := fx.options.int64(OptLastUpdate); got < before {
		t.Fatalf("bulk check should stamp last update, got %d (before %d)", got, before)
	}
}

func TestCheckUpdateEndToEndNoUpdate(t *testing.T) {
	script := noUpdateScript("a.example", 1)
	fx := newCheckerFixture(t, script)
	fx.options.setBool(OptNotifyUpdates, true)
	fx.transport.respond(metaURL("a.example", 1), noUpdateDescriptor(1))

	count, err := fx.checker.CheckUpdate(context.Background())
	if err != nil {
		t.Fatalf("CheckUpdate error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 updates, got %d", count)
	}
	if got := len(fx.transport.callOrder()); got != 1 {
		t.Fatalf("expected only the descriptor fetch, got %d fetches", got)
	}
	if persists := fx.store.persistCount(); persists != 0 {
		t.Fatalf("nothing should be persisted, got %d persists", persists)
	}
	if notes := fx.notifier.notifications(); len(notes) != 0 {
		t.Fatalf("no bulk notification expected, got %v", notes)
	}
}
