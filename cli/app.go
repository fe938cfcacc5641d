// Dependency wiring for CLI commands.
//
// Information Hiding:
// - Storage backend selection
// - Provider construction and activation setup
// - Logger construction

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/richinex/folio/activation"
	"github.com/richinex/folio/completion"
	"github.com/richinex/folio/config"
	"github.com/richinex/folio/internal/logging"
	"github.com/richinex/folio/llm"
	"github.com/richinex/folio/storage"
	"github.com/sirupsen/logrus"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	Verbose  bool

	Out io.Writer
	In  io.Reader
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Out: os.Stdout,
		In:  os.Stdin,
	}
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o Options) in() io.Reader {
	if o.In == nil {
		return os.Stdin
	}
	return o.In
}

// App holds the components built from settings.
type App struct {
	Settings config.Settings
	Log      *logrus.Logger
	Records  storage.CacheRecordStore
	Streamer llm.Streamer
	Service  *completion.Service
	Notebook *completion.Notebook

	closers []func() error
}

// LoadSettings reads and validates settings for the selected provider.
func LoadSettings(opts Options) (config.Settings, *logrus.Logger, error) {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return config.Settings{}, nil, err
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, nil, err
	}

	logger, err := logging.New(settings.Log.Level, settings.Log.Format)
	if err != nil {
		return config.Settings{}, nil, err
	}
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return settings, logger, nil
}

// NewApp builds storage, provider and services. Call Close when done.
func NewApp(settings config.Settings, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	app := &App{Settings: settings, Log: logger}

	records, closeRecords, err := openRecords(settings.Storage)
	if err != nil {
		return nil, err
	}
	app.Records = records
	if closeRecords != nil {
		app.closers = append(app.closers, closeRecords)
	}

	streamer, err := createProvider(settings.LLM)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Streamer = streamer

	serviceOpts := []completion.Option{completion.WithLogger(logger)}
	if settings.LLM.CostPer1kTokens > 0 {
		serviceOpts = append(serviceOpts, completion.WithCostPer1k(settings.LLM.CostPer1kTokens))
	}
	if cacher, ok := llm.AsDocumentCacher(streamer); ok {
		pipeline := activation.New(cacher, streamer.Model(),
			activation.WithTTL(settings.Cache.TTL),
			activation.WithScratchDir(settings.Cache.ScratchDir),
			activation.WithPolling(settings.Cache.PollAttempts, settings.Cache.PollInterval),
			activation.WithLogger(logger),
		)
		serviceOpts = append(serviceOpts, completion.WithActivator(pipeline))
	} else {
		logger.WithField("provider", streamer.Name()).Info("provider has no document caching, documents are sent inline")
	}

	app.Service = completion.New(streamer, serviceOpts...)
	app.Notebook = completion.NewNotebook(app.Service, records,
		completion.WithRecordTTL(settings.Cache.TTL),
		completion.WithNotebookLogger(logger),
	)
	return app, nil
}

// Close releases storage connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.WithError(err).Warn("failed to close resource")
		}
	}
	a.closers = nil
}

func openRecords(cfg config.StorageConfig) (storage.CacheRecordStore, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewInMemoryStorage(), nil, nil
	case config.BackendSqlite, "":
		s, err := storage.OpenSqlite(cfg.SqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return s, s.Close, nil
	case config.BackendValkey:
		s, err := storage.OpenValkey(storage.ValkeyConfig{
			Address:   cfg.ValkeyAddr,
			Password:  cfg.ValkeyPassword,
			DB:        cfg.ValkeyDB,
			KeyPrefix: cfg.ValkeyKeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

func createProvider(cfg config.LLMConfig) (llm.Streamer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("no API key configured for provider " + cfg.Provider)
	}

	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	return llm.NewStreamer(llm.ProviderConfig{
		Type:   providerType,
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		Defaults: &llm.GenerationDefaults{
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
		},
	})
}
