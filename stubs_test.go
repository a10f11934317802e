package updateagent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/scriptward/UpdateAgent/internal/meta"
)

type stubStore struct {
	mu         sync.Mutex
	scripts    []*Script
	persistErr error
	persisted  []PersistRequest
}

func (s *stubStore) GetScript(ctx context.Context, id int64) (*Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, script := range s.scripts {
		if script.ID == id {
			return script, nil
		}
	}
	return nil, errors.Errorf("script %d not found", id)
}

func (s *stubStore) AllScripts(ctx context.Context) ([]*Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Script, len(s.scripts))
	copy(out, s.scripts)
	return out, nil
}

func (s *stubStore) ParseAndPersist(ctx context.Context, req PersistRequest) (*Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, req)
	if s.persistErr != nil {
		return nil, s.persistErr
	}
	block, parseErr := meta.Parse(req.Code)
	if parseErr != nil {
		return nil, parseErr
	}
	refreshed := &Script{
		ID: req.ID,
		Meta: ScriptMeta{
			Name:        block.Name,
			Version:     block.Version,
			DownloadURL: block.DownloadURL,
			UpdateURL:   block.UpdateURL,
		},
		Update: req.Update,
		Code:   req.Code,
	}
	for i, script := range s.scripts {
		if script.ID == req.ID {
			refreshed.Config = script.Config
			s.scripts[i] = refreshed
			break
		}
	}
	return refreshed, nil
}

func (s *stubStore) persistCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.persisted)
}

type stubOptions struct {
	mu    sync.Mutex
	bools map[string]bool
	ints  map[string]int64
}

func newStubOptions() *stubOptions {
	return &stubOptions{bools: make(map[string]bool), ints: make(map[string]int64)}
}

func (o *stubOptions) Bool(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bools[key]
}

func (o *stubOptions) SetInt64(key string, value int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ints[key] = value
	return nil
}

func (o *stubOptions) setBool(key string, value bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bools[key] = value
}

func (o *stubOptions) int64(key string) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ints[key]
}

type stubResponse struct {
	body string
	err  error
}

type stubTransport struct {
	mu          sync.Mutex
	responses   map[string]stubResponse
	delay       time.Duration
	calls       []string
	inFlight    map[string]int
	maxInFlight map[string]int
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		responses:   make(map[string]stubResponse),
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
	}
}

func (t *stubTransport) respond(url, body string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[url] = stubResponse{body: body}
}

func (t *stubTransport) fail(url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[url] = stubResponse{err: err}
}

func (t *stubTransport) FetchIfNewer(ctx context.Context, url string, opts FetchOptions) (string, error) {
	host := hostKey(url)
	t.mu.Lock()
	t.calls = append(t.calls, url)
	t.inFlight[host]++
	if t.inFlight[host] > t.maxInFlight[host] {
		t.maxInFlight[host] = t.inFlight[host]
	}
	delay := t.delay
	t.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	t.mu.Lock()
	t.inFlight[host]--
	resp := t.responses[url]
	t.mu.Unlock()
	return resp.body, resp.err
}

func (t *stubTransport) callCount(url string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, called := range t.calls {
		if called == url {
			count++
		}
	}
	return count
}

func (t *stubTransport) callOrder() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	copy(out, t.calls)
	return out
}

func (t *stubTransport) peakConcurrency(host string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInFlight[host]
}

type bulkNotification struct {
	title string
	body  string
	ids   []int64
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ProgressEvent
	bulks  []bulkNotification
}

func (n *recordingNotifier) AnnounceProgress(ctx context.Context, ev ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) NotifyBulkResult(ctx context.Context, title, body string, scriptIDs []int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bulks = append(n.bulks, bulkNotification{title: title, body: body, ids: scriptIDs})
}

func (n *recordingNotifier) progress() []ProgressEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ProgressEvent, len(n.events))
	copy(out, n.events)
	return out
}

func (n *recordingNotifier) notifications() []bulkNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]bulkNotification, len(n.bulks))
	copy(out, n.bulks)
	return out
}

type recordingResources struct {
	mu    sync.Mutex
	calls []CacheMode
}

func (r *recordingResources) Refresh(ctx context.Context, script *Script, mode CacheMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, mode)
	return nil
}

func (r *recordingResources) modes() []CacheMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CacheMode, len(r.calls))
	copy(out, r.calls)
	return out
}

type checkerFixture struct {
	checker   *Checker
	store     *stubStore
	options   *stubOptions
	transport *stubTransport
	notifier  *recordingNotifier
	resources *recordingResources
}

func newCheckerFixture(t *testing.T, scripts ...*Script) *checkerFixture {
	t.Helper()
	fx := &checkerFixture{
		store:     &stubStore{scripts: scripts},
		options:   newStubOptions(),
		transport: newStubTransport(),
		notifier:  &recordingNotifier{},
		resources: &recordingResources{},
	}
	checker, err := New(Config{
		Store:         fx.store,
		Options:       fx.options,
		Transport:     fx.transport,
		Notifier:      fx.notifier,
		ResourceCache: fx.resources,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	fx.checker = checker
	return fx
}
