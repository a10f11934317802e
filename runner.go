package updateagent

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/scriptward/UpdateAgent/internal/meta"
)

// acceptScriptMeta asks servers that can serve the metadata subset of a
// script to do so instead of shipping the full payload.
const acceptScriptMeta = "text/x-userscript-meta,*/*"

// runProtocol executes the two-phase update check for one script: query the
// descriptor, compare versions, conditionally fetch the payload, persist and
// finalize. Every phase transition is announced on the progress side channel.
// Failures are contained here and converted into an Outcome or dropped.
func (c *Checker) runProtocol(ctx context.Context, entry poolEntry) *Outcome {
	script := entry.script
	name := script.Meta.Name

	announce := func(message string, checking bool, errText string) {
		c.notifier.AnnounceProgress(ctx, ProgressEvent{
			ScriptID: entry.id,
			Message:  message,
			Checking: checking,
			Error:    errText,
		})
	}

	announce(c.localizer.Translate(MsgCheckingForUpdate), true, "")

	content, failText, failDetail := c.fetchNewVersion(ctx, entry, announce)
	if failText != "" {
		announce(failText, false, failDetail)
		c.refreshResources(ctx, script, CacheDefault)
		return c.reportable(script, failText, true, false)
	}
	if content == "" {
		// No update, or a new version with nowhere to download from. Both
		// settle without content and without a resource refresh.
		return nil
	}

	persisted, err := c.store.ParseAndPersist(ctx, PersistRequest{
		ID:   entry.id,
		Code: content,
		Update: UpdateState{
			Checking: false,
			Message:  c.localizer.Translate(MsgUpdated),
		},
	})
	if err != nil {
		text := err.Error()
		announce(text, false, text)
		c.refreshResources(ctx, script, CacheDefault)
		return c.reportable(script, text, true, false)
	}

	script = persisted
	if script.Meta.Name != "" {
		name = script.Meta.Name
	}
	announce(c.localizer.Translate(MsgUpdated), false, "")
	c.refreshResources(ctx, script, CacheNoCache)
	log.Info().Int64("script_id", entry.id).Str("name", name).Msg("script updated")
	return c.reportable(script, c.localizer.Translate(MsgScriptUpdated, name), false, true)
}

// fetchNewVersion runs the network half of the protocol and returns the new
// script code, if any. A non-empty failText means the run failed at the
// stage failText describes, with failDetail carrying the underlying cause.
// Empty content with empty failText means the run settled with nothing to
// install; those paths announce their terminal message themselves.
func (c *Checker) fetchNewVersion(ctx context.Context, entry poolEntry, announce func(string, bool, string)) (content, failText, failDetail string) {
	body, err := c.transport.FetchIfNewer(ctx, entry.urls.Update, FetchOptions{
		NoCache:        true,
		Accept:         acceptScriptMeta,
		OnlyIfModified: true,
	})
	if err != nil {
		return "", c.localizer.Translate(MsgErrorFetchingUpdate), err.Error()
	}
	if body == "" {
		// Precondition hit: the descriptor is unchanged since the last check.
		announce(c.localizer.Translate(MsgNoUpdate), false, "")
		return "", "", ""
	}

	remote := ""
	if block, parseErr := meta.Parse(body); parseErr == nil {
		remote = block.Version
	}
	if CompareVersions(entry.script.Meta.Version, remote) >= 0 {
		announce(c.localizer.Translate(MsgNoUpdate), false, "")
		return "", "", ""
	}
	if entry.urls.Download == "" {
		announce(c.localizer.Translate(MsgNewVersion), false, "")
		return "", "", ""
	}

	// A dumb server answers the metadata query with the full script. When it
	// did, install that body directly instead of issuing a second request.
	if entry.urls.Download == entry.urls.Update && strings.TrimSpace(meta.Strip(body)) != "" {
		return body, "", ""
	}

	announce(c.localizer.Translate(MsgUpdating), true, "")
	payload, err := c.transport.FetchIfNewer(ctx, entry.urls.Download, FetchOptions{NoCache: true})
	if err != nil {
		return "", c.localizer.Translate(MsgErrorFetchingScript), err.Error()
	}
	if payload == "" {
		return "", c.localizer.Translate(MsgErrorFetchingScript), "empty response body: " + entry.urls.Download
	}
	return payload, "", ""
}

// reportable applies the notify gate and produces the script's outcome:
// a text line for the bulk notification when notifying, the silent success
// marker for an unreported update, nil otherwise.
func (c *Checker) reportable(script *Script, text string, isErr, updated bool) *Outcome {
	out := &Outcome{ScriptID: script.ID, Updated: updated}
	if text != "" && c.canNotify(script) {
		out.Text = text
		out.Err = isErr
		return out
	}
	if updated {
		return out
	}
	return nil
}

func (c *Checker) canNotify(script *Script) bool {
	if !c.options.Bool(OptNotifyUpdates) {
		return false
	}
	if c.options.Bool(OptNotifyUpdatesGlobal) {
		return true
	}
	if script.Config.NotifyUpdates != nil {
		return *script.Config.NotifyUpdates
	}
	// Unset per-script flag follows the (enabled) global setting.
	return true
}

func (c *Checker) refreshResources(ctx context.Context, script *Script, mode CacheMode) {
	if mode == CacheSkip {
		return
	}
	if err := c.resources.Refresh(ctx, script, mode); err != nil {
		log.Warn().Err(err).Int64("script_id", script.ID).Msg("resource refresh failed")
	}
}
