package updateagent

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Message keys understood by the built-in localizer. Callers may supply
// their own Localizer with translations for the same keys.
const (
	MsgCheckingForUpdate     = "msgCheckingForUpdate"
	MsgNoUpdate              = "msgNoUpdate"
	MsgNewVersion            = "msgNewVersion"
	MsgUpdating              = "msgUpdating"
	MsgUpdated               = "msgUpdated"
	MsgScriptUpdated         = "msgScriptUpdated"
	MsgErrorFetchingUpdate   = "msgErrorFetchingUpdateInfo"
	MsgErrorFetchingScript   = "msgErrorFetchingScript"
	TitleUpdateErrors        = "titleUpdateErrors"
	TitleUpdateCheckComplete = "titleUpdateCheckComplete"
)

var englishMessages = map[string]string{
	MsgCheckingForUpdate:     "Checking for update...",
	MsgNoUpdate:              "No update found",
	MsgNewVersion:            "New version found, but no download URL is configured",
	MsgUpdating:              "Updating...",
	MsgUpdated:               "Updated",
	MsgScriptUpdated:         "Script %s updated",
	MsgErrorFetchingUpdate:   "Error fetching update info",
	MsgErrorFetchingScript:   "Error fetching script",
	TitleUpdateErrors:        "Errors occurred while updating scripts",
	TitleUpdateCheckComplete: "Script update check complete",
}

type englishLocalizer struct{}

// Translate renders the English message for key, substituting each "%s"
// placeholder with the next argument. Unknown keys fall back to the key
// itself so a missing entry is visible rather than silent.
func (englishLocalizer) Translate(key string, args ...string) string {
	msg, ok := englishMessages[key]
	if !ok {
		return key
	}
	for _, arg := range args {
		msg = strings.Replace(msg, "%s", arg, 1)
	}
	return msg
}

// LogNotifier is the default Notifier: progress events and bulk results go
// to the structured log.
type LogNotifier struct{}

func (LogNotifier) AnnounceProgress(ctx context.Context, ev ProgressEvent) {
	event := log.Info()
	if ev.Error != "" {
		event = log.Warn().Str("error", ev.Error)
	}
	event.
		Int64("script_id", ev.ScriptID).
		Bool("checking", ev.Checking).
		Msg(ev.Message)
}

func (LogNotifier) NotifyBulkResult(ctx context.Context, title, body string, scriptIDs []int64) {
	log.Info().
		Str("title", title).
		Ints64("script_ids", scriptIDs).
		Msg(body)
}
