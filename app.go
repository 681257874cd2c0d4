package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/refset/prevd-classifier/internal/classifier"
	"github.com/refset/prevd-classifier/internal/config"
	"github.com/refset/prevd-classifier/internal/gemini"
	"github.com/refset/prevd-classifier/internal/kafka"
	"github.com/refset/prevd-classifier/internal/logging"
	"github.com/refset/prevd-classifier/internal/pipeline"
	"github.com/refset/prevd-classifier/internal/store"
)

// app holds everything a command needs. Producer and store are nil when
// their section of the config is empty.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	model    classifier.Model
	pipe     *pipeline.Pipeline
	producer *kafka.Producer
	store    *store.Store
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	model, err := newModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	engine := classifier.New(model, classifier.Options{
		Sequential: !cfg.Classifier.ParallelRounds,
		Logger:     log,
	})

	a := &app{cfg: cfg, log: log, model: model}
	opts := pipeline.OptionsFromConfig(cfg)
	opts.Logger = log

	if cfg.Kafka.Enabled() {
		a.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.ResultsTopic, log)
		opts.Publisher = a.producer
		log.Info("publishing to kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	if cfg.Store.Enabled() {
		if err := a.openStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
		opts.Recorder = a.store
	}

	a.pipe = pipeline.New(engine, opts)
	log.Info("classifier ready",
		zap.String("backend", cfg.Model.Backend),
		zap.String("model", model.Name()),
		zap.String("promptVersion", classifier.PromptVersion))
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	st, err := store.Open(ctx, a.cfg.Store.ConnString)
	if err != nil {
		return err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return err
	}
	a.store = st
	return nil
}

func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.log.Sync()
}

type pinger interface {
	Ping(ctx context.Context) error
}

// checkModel verifies the model endpoint before a long-running command starts.
// A missing key is only logged: the API still serves metadata, and each
// classification reports the configuration error itself.
func checkModel(ctx context.Context, m classifier.Model, log *zap.Logger) error {
	p, ok := m.(pinger)
	if !ok {
		return nil
	}
	err := p.Ping(ctx)
	var cfgErr *gemini.ConfigurationError
	switch {
	case err == nil:
		log.Info("connected to gemini", zap.String("model", m.Name()))
		return nil
	case errors.As(err, &cfgErr):
		log.Warn("gemini is not configured", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("failed to connect to gemini: %w", err)
	}
}

// newModel picks the Gemini transport named by model.backend.
func newModel(ctx context.Context, cfg *config.Config) (classifier.Model, error) {
	m := cfg.Model
	switch m.Backend {
	case config.BackendGenAI:
		return gemini.NewSDKClient(ctx, m.BaseURL, m.APIKey, m.Name, m.Timeout)
	case config.BackendREST, "":
		return gemini.NewClient(m.BaseURL, m.APIKey, m.Name, m.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", m.Backend)
	}
}
