// Package app wires configuration, logging, storage and the tracker service
// for the command line tools.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"spendbook/internal/config"
	"spendbook/internal/logging"
	"spendbook/internal/notify"
	"spendbook/internal/storage"
	"spendbook/internal/tracker"

	"golang.org/x/term"
)

// App is an opened tracker with its backing resources.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Service   *tracker.Service
	store     storage.RecordStore
	publisher *notify.AMQPPublisher
	restore   func()
}

// Open validates cfg and builds the service. Logs go to logOut, which also
// becomes the slog default until Close. A nil logOut drops them.
func Open(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.Discard()
	if logOut != nil {
		logger = logging.New(logging.Config{
			Level:  logging.ParseLevel(cfg.LogLevel),
			JSON:   cfg.LogJSON,
			Output: logOut,
		})
	}

	store, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	hub := notify.NewHub(logger)
	a := &App{Config: cfg, Logger: logger, store: store, restore: logging.Install(logger)}

	if cfg.AMQPURL != "" {
		p, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			// Events are optional; the tracker works without them.
			logger.WarnContext(ctx, "event publishing disabled", "error", err)
		} else {
			a.publisher = p
			hub.Subscribe(p.Listener())
		}
	}

	a.Service = tracker.New(store, tracker.Options{
		Logger:        logger,
		Hub:           hub,
		AvatarMaxSide: cfg.AvatarMaxSide,
	})
	return a, nil
}

// Close releases the store and the event publisher and restores the previous
// default logger.
func (a *App) Close() error {
	defer a.restore()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	return a.store.Close()
}

// ReadPassword reads a line from stdin without echo when stdin is a terminal.
// Callers prompting more than once on a pipe should pass the same
// *bufio.Reader each time.
func ReadPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	br, ok := stdin.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(stdin)
	}
	line, err := br.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
