package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"courierdb/pkg/api"
	"courierdb/pkg/clock"
	"courierdb/pkg/config"
	"courierdb/pkg/connections"
	"courierdb/pkg/guard"
	"courierdb/pkg/index"
	"courierdb/pkg/logger"
	"courierdb/pkg/media"
	"courierdb/pkg/reconcile"
	"courierdb/pkg/retention"
	"courierdb/pkg/store"
	"courierdb/pkg/tracker"
	"courierdb/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	st  *store.Store
	api *api.API

	retCancel context.CancelFunc
	srv       *http.Server
}

// New initializes resources that do not require a running context
// (DB, validation rules, runtime keys, component wiring). Call Run to
// start the HTTP server and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	initValidation(eff)

	clk := clock.System{}
	var gw connections.Gateway = connections.AllowAll{}
	if entries := eff.Config.Messaging.Connections; len(entries) > 0 {
		sg, gerr := connections.NewStaticFromEntries(entries)
		if gerr != nil {
			return nil, fmt.Errorf("invalid messaging.connections entry: %w", gerr)
		}
		gw = sg
	}
	st, err := store.Open(eff.DBPath, clk, gw)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	var mediaStore media.Storage
	if eff.Config.Media.Enabled {
		ms, merr := media.NewMinIO(context.Background(), eff.Config.Media.MinIO)
		if merr != nil {
			_ = st.Close()
			return nil, fmt.Errorf("media storage: %w", merr)
		}
		mediaStore = ms
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		st:        st,
		api: &api.API{
			Store:     st,
			Index:     index.New(st),
			Tracker:   tracker.New(st, clk),
			Guard:     guard.New(st, clk, eff.Config.EditWindowDuration()),
			Engine:    reconcile.New(st, clk),
			Media:     mediaStore,
			PageSize:  eff.Config.Messaging.PageSize,
			MaxUpload: eff.Config.MaxUploadBytes(),
		},
	}
	return a, nil
}

// Run starts the retention scheduler and the HTTP server, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancel, err := a.startRetention(ctx)
	if err != nil {
		return err
	}
	a.retCancel = cancel

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) startRetention(ctx context.Context) (context.CancelFunc, error) {
	ret := a.eff.Config.Retention
	cfg := retention.Config{Enabled: ret.Enabled, Cron: ret.Schedule}
	if ret.MaxAge != "" {
		d, err := time.ParseDuration(ret.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid retention.max_age %q: %w", ret.MaxAge, err)
		}
		cfg.MaxAge = d
	}
	return retention.Start(ctx, a.st, cfg)
}

func (a *App) shutdown() {
	if a.retCancel != nil {
		a.retCancel()
	}
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(ctx)
	}
	if err := a.st.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}

// initValidation builds draft content rules from config and sets them
// globally.
func initValidation(eff config.EffectiveConfigResult) {
	vr := validation.Rules{
		MaxTextLen:  eff.Config.Messaging.MaxTextLen,
		MaxMedia:    eff.Config.Messaging.MaxMedia,
		MaxMediaURL: 2048,
	}
	if vr.MaxTextLen <= 0 {
		vr.MaxTextLen = 64 << 10
	}
	if vr.MaxMedia <= 0 {
		vr.MaxMedia = 10
	}
	validation.SetRules(vr)
}
