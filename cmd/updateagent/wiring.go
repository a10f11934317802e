package main

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	updateagent "github.com/scriptward/UpdateAgent"
	"github.com/scriptward/UpdateAgent/internal/config"
	"github.com/scriptward/UpdateAgent/internal/notify"
	"github.com/scriptward/UpdateAgent/internal/storage"
	"github.com/scriptward/UpdateAgent/internal/transport"
)

func resolveDBPath() (string, error) {
	if rootDBPath != "" {
		return rootDBPath, nil
	}
	if path := config.String("UPDATEAGENT_DB_PATH", ""); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	dir := filepath.Join(home, ".updateagent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create data directory")
	}
	return filepath.Join(dir, "scripts.db"), nil
}

func openStore() (*storage.Store, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	return storage.Open(path)
}

func newTransport() *transport.Client {
	timeout := config.Duration("UPDATEAGENT_HTTP_TIMEOUT", 30*time.Second)
	return transport.NewClient(&http.Client{Timeout: timeout})
}

func buildChecker(store *storage.Store) (*updateagent.Checker, error) {
	notifier := notify.NewWebhook(
		config.String("UPDATEAGENT_WEBHOOK_URL", ""),
		config.Int("UPDATEAGENT_WEBHOOK_QUEUE", 100),
		updateagent.LogNotifier{})
	return updateagent.New(updateagent.Config{
		Store:     store,
		Options:   store,
		Transport: newTransport(),
		Notifier:  notifier,
	})
}
