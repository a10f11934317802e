package updateagent

import (
	"context"
	"strings"
)

// Script is an installable userscript with a declared version and a remote
// update descriptor. The store owns it; the checker borrows it for the
// duration of one check and writes back only the update-state fields and, on
// a successful update, the full code.
type Script struct {
	ID     int64
	Meta   ScriptMeta
	Config ScriptConfig
	Update UpdateState
	Code   string
}

// ScriptMeta holds fields declared in the script's metadata block.
type ScriptMeta struct {
	Name        string
	Version     string
	DownloadURL string
	UpdateURL   string
}

// ScriptConfig holds per-script settings.
type ScriptConfig struct {
	Enabled bool
	// NotifyUpdates overrides the global notify option for this script.
	// nil means "follow the global setting".
	NotifyUpdates *bool
}

// UpdateState is the mutable check-progress state of a script.
type UpdateState struct {
	Checking bool
	Error    string
	Message  string
}

// UpdateURLs is the pair of remote endpoints a script can be updated from.
// Update is the descriptor endpoint, Download the full-payload endpoint.
// Either may be empty; a script with no Update URL is not checkable.
type UpdateURLs struct {
	Download string
	Update   string
}

// Valid reports whether the script can be checked at all.
func (u UpdateURLs) Valid() bool {
	return strings.TrimSpace(u.Update) != ""
}

func scriptUpdateURLs(s *Script) UpdateURLs {
	if s == nil {
		return UpdateURLs{}
	}
	urls := UpdateURLs{
		Download: strings.TrimSpace(s.Meta.DownloadURL),
		Update:   strings.TrimSpace(s.Meta.UpdateURL),
	}
	if urls.Update == "" {
		urls.Update = urls.Download
	}
	return urls
}

// Outcome is the reportable result of checking one script. A nil Outcome
// means nothing to report. Updated with an empty Text is the silent success
// marker counted by CheckUpdate; a non-empty Text carries a line for the
// consolidated notification.
type Outcome struct {
	ScriptID int64
	Updated  bool
	Text     string
	Err      bool
}

// PersistRequest carries freshly downloaded code to the store for metadata
// parsing and persistence.
type PersistRequest struct {
	ID     int64
	Code   string
	Update UpdateState
}

// ScriptStore owns script records.
type ScriptStore interface {
	GetScript(ctx context.Context, id int64) (*Script, error)
	AllScripts(ctx context.Context) ([]*Script, error)
	// ParseAndPersist parses the metadata block of req.Code, persists the
	// script and returns the finalized record. A parse or validation
	// failure is returned as an error whose message is user-facing.
	ParseAndPersist(ctx context.Context, req PersistRequest) (*Script, error)
}

// OptionsStore provides persisted user options.
type OptionsStore interface {
	Bool(key string) bool
	SetInt64(key string, value int64) error
}

// CacheMode selects resource refresh semantics after a check.
type CacheMode int

const (
	// CacheSkip means no refresh is requested at all.
	CacheSkip CacheMode = iota
	// CacheDefault requests a refresh with default cache semantics.
	CacheDefault
	// CacheNoCache requests a refresh bypassing caches.
	CacheNoCache
)

// ResourceCache refreshes the resources (@require/@resource) of a script.
type ResourceCache interface {
	Refresh(ctx context.Context, script *Script, mode CacheMode) error
}

// FetchOptions controls a single conditional fetch.
type FetchOptions struct {
	// NoCache bypasses intermediary caches.
	NoCache bool
	// Accept is sent as the Accept header when non-empty.
	Accept string
	// OnlyIfModified tags the request with the validator remembered from
	// the previous successful fetch of the same URL.
	OnlyIfModified bool
}

// Transport performs conditional HTTP fetches. An empty body with a nil
// error signals "not modified".
type Transport interface {
	FetchIfNewer(ctx context.Context, url string, opts FetchOptions) (string, error)
}

// ProgressEvent is a fire-and-forget announcement of a check phase
// transition, for live UI display during long bulk checks.
type ProgressEvent struct {
	ScriptID int64
	Message  string
	Checking bool
	Error    string
}

// Notifier receives progress events and the consolidated bulk result.
type Notifier interface {
	AnnounceProgress(ctx context.Context, ev ProgressEvent)
	NotifyBulkResult(ctx context.Context, title, body string, scriptIDs []int64)
}

// Localizer renders user-facing messages.
type Localizer interface {
	Translate(key string, args ...string) string
}

type noopResourceCache struct{}

func (noopResourceCache) Refresh(ctx context.Context, script *Script, mode CacheMode) error {
	return nil
}
