package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/opwatch/opwatch/pkg/config"
	"github.com/opwatch/opwatch/pkg/controlplane"
	"github.com/opwatch/opwatch/pkg/history"
	"github.com/opwatch/opwatch/pkg/policy"
	"github.com/opwatch/opwatch/pkg/telemetry"
	"github.com/opwatch/opwatch/pkg/tracker"
)

// app holds the wired application: config, telemetry, policy guard, audit
// history, control-plane client and the tracker itself. Commands build one,
// use it and close it.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	tracker   *tracker.Tracker
	store     *history.Store
	recorder  *history.Recorder
}

// buildApp wires every subsystem from the config file. Optional subsystems
// (history, policy) stay nil when disabled.
func buildApp(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	tel, err := telemetry.NewTelemetry(cfg.TelemetrySettings(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{cfg: cfg, telemetry: tel}

	if err := tel.StartMetricsServer(); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	client, err := controlplane.NewClient(controlplane.ClientConfig{
		BaseURL:        cfg.ControlPlane.BaseURL,
		AuthToken:      cfg.ControlPlane.AuthToken,
		RequestTimeout: cfg.ControlPlane.RequestTimeout.Std(),
		Logger:         tel.Logger.NewComponentLogger("controlplane").Zerolog(),
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create control plane client: %w", err)
	}

	var guard tracker.SubmissionGuard
	if cfg.Policy.Enabled {
		engine, err := policy.NewEngine(tel.Logger.NewComponentLogger("policy").Zerolog())
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to create policy engine: %w", err)
		}
		if cfg.Policy.Dir != "" {
			if err := engine.LoadPolicies(ctx, []string{cfg.Policy.Dir}); err != nil {
				a.close(ctx)
				return nil, fmt.Errorf("failed to load policies: %w", err)
			}
		}
		guard = policy.NewGuard(engine,
			policy.WithProtectedTypes(cfg.Policy.ProtectedResourceTypes),
			policy.WithAllowedConnections(cfg.Policy.AllowedConnections),
			policy.WithEnvironment(tel.Config.Environment),
			policy.WithEventPublisher(tel.Events),
		)
	}

	tr, err := tracker.New(client, tracker.Config{
		PollInterval:  cfg.Tracker.PollInterval.Std(),
		StatusTimeout: cfg.Tracker.StatusTimeout.Std(),
		Logger:        tel.Logger.NewComponentLogger("tracker").Zerolog(),
		Telemetry:     telemetry.NewSink(tel),
		Guard:         guard,
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}
	a.tracker = tr
	tr.Subscribe(telemetry.NewBridge(tel.Events))

	if cfg.History.Enabled {
		store, err := history.NewStore(history.Config{Path: cfg.History.Path})
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to create history store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			a.close(ctx)
			return nil, fmt.Errorf("failed to migrate history store: %w", err)
		}
		a.store = store
		a.recorder = history.NewRecorder(store, tel.Logger.NewComponentLogger("history").Zerolog())
		tr.Subscribe(a.recorder)
	}

	return a, nil
}

// buildHistoryStore opens only the history store, for commands that query
// the audit trail without talking to the control plane.
func buildHistoryStore(ctx context.Context) (*history.Store, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.History.Enabled {
		return nil, nil, fmt.Errorf("history is disabled in %s", configPath)
	}

	store, err := history.NewStore(history.Config{Path: cfg.History.Path})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create history store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to migrate history store: %w", err)
	}

	return store, cfg, nil
}

// close tears the app down in reverse dependency order. The tracker stops
// first so no new outcomes arrive while the recorder drains.
func (a *app) close(ctx context.Context) {
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = a.telemetry.Shutdown(shutdownCtx)
	}
}
