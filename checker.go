package updateagent

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Option keys consulted by the checker.
const (
	// OptUpdateEnabledScriptsOnly excludes disabled scripts from bulk runs.
	OptUpdateEnabledScriptsOnly = "updateEnabledScriptsOnly"
	// OptNotifyUpdates is the global notify-on-update switch.
	OptNotifyUpdates = "notifyUpdates"
	// OptNotifyUpdatesGlobal makes the global switch override per-script flags.
	OptNotifyUpdatesGlobal = "notifyUpdatesGlobal"
	// OptLastUpdate stores the unix-millisecond timestamp of the last bulk check.
	OptLastUpdate = "lastUpdate"
)

// Config wires the checker's collaborators. Store, Options, Transport and
// Notifier are required; ResourceCache and Localizer default to a no-op
// cache and the built-in English messages.
type Config struct {
	Store         ScriptStore
	Options       OptionsStore
	Transport     Transport
	Notifier      Notifier
	ResourceCache ResourceCache
	Localizer     Localizer
}

// Checker runs bounded-concurrency update checks over a script collection.
type Checker struct {
	store     ScriptStore
	options   OptionsStore
	transport Transport
	notifier  Notifier
	resources ResourceCache
	localizer Localizer

	// inflight guarantees at most one active protocol run per script id.
	inflightMu sync.Mutex
	inflight   map[int64]*inflightCheck
}

type inflightCheck struct {
	done    chan struct{}
	outcome *Outcome
}

// New builds a Checker from cfg.
func New(cfg Config) (*Checker, error) {
	if cfg.Store == nil {
		return nil, errors.New("script store cannot be nil")
	}
	if cfg.Options == nil {
		return nil, errors.New("options store cannot be nil")
	}
	if cfg.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}
	resources := cfg.ResourceCache
	if resources == nil {
		resources = noopResourceCache{}
	}
	localizer := cfg.Localizer
	if localizer == nil {
		localizer = englishLocalizer{}
	}
	return &Checker{
		store:     cfg.Store,
		options:   cfg.Options,
		transport: cfg.Transport,
		notifier:  cfg.Notifier,
		resources: resources,
		localizer: localizer,
		inflight:  make(map[int64]*inflightCheck),
	}, nil
}

// CheckUpdate checks the given scripts, or every script in the store when no
// id is given. Explicit ids bypass the enabled-only filter. It returns the
// number of silently successful updates; per-script failures never propagate
// as an error, only store lookups can fail.
func (c *Checker) CheckUpdate(ctx context.Context, ids ...int64) (int, error) {
	explicit := len(ids) > 0

	var scripts []*Script
	if explicit {
		for _, id := range ids {
			script, err := c.store.GetScript(ctx, id)
			if err != nil {
				return 0, errors.Wrapf(err, "load script %d", id)
			}
			scripts = append(scripts, script)
		}
	} else {
		all, err := c.store.AllScripts(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "load scripts")
		}
		scripts = all
	}

	enabledOnly := c.options.Bool(OptUpdateEnabledScriptsOnly)
	entries := make([]poolEntry, 0, len(scripts))
	for _, script := range scripts {
		if script == nil {
			continue
		}
		urls := scriptUpdateURLs(script)
		if !eligible(script, urls, enabledOnly, explicit) {
			continue
		}
		entries = append(entries, poolEntry{id: script.ID, script: script, urls: urls})
	}

	buckets := buildHostBuckets(entries)
	log.Info().
		Int("scripts", len(entries)).
		Int("hosts", len(buckets)).
		Bool("explicit", explicit).
		Msg("starting update check")

	outcomes := c.runBuckets(ctx, buckets)
	updated := c.aggregate(ctx, outcomes)

	if !explicit {
		if err := c.options.SetInt64(OptLastUpdate, time.Now().UnixMilli()); err != nil {
			log.Warn().Err(err).Msg("store last update timestamp failed")
		}
	}
	return updated, nil
}

// eligible decides whether a script participates in this run. Scripts with
// no resolvable update URL never do; otherwise an explicit check always
// participates, and bulk runs skip disabled scripts when enabledOnly is set.
func eligible(script *Script, urls UpdateURLs, enabledOnly, explicit bool) bool {
	if !urls.Valid() {
		return false
	}
	return explicit || script.Config.Enabled || !enabledOnly
}

// checkScript runs the update protocol for one script, collapsing concurrent
// checks of the same id onto a single run. The registry entry is removed
// unconditionally once the run settles so later checks are never deadlocked.
func (c *Checker) checkScript(ctx context.Context, entry poolEntry) *Outcome {
	c.inflightMu.Lock()
	if pending, ok := c.inflight[entry.id]; ok {
		c.inflightMu.Unlock()
		log.Debug().Int64("script_id", entry.id).Msg("joining in-flight update check")
		<-pending.done
		return pending.outcome
	}
	pending := &inflightCheck{done: make(chan struct{})}
	c.inflight[entry.id] = pending
	c.inflightMu.Unlock()

	defer func() {
		c.inflightMu.Lock()
		delete(c.inflight, entry.id)
		c.inflightMu.Unlock()
		close(pending.done)
	}()

	pending.outcome = c.runProtocol(ctx, entry)
	return pending.outcome
}
