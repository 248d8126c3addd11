package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crohr/smart-git-proxy/internal/backend"
	"github.com/crohr/smart-git-proxy/internal/cloudmap"
	"github.com/crohr/smart-git-proxy/internal/config"
	"github.com/crohr/smart-git-proxy/internal/controller"
	"github.com/crohr/smart-git-proxy/internal/gitcontext"
	"github.com/crohr/smart-git-proxy/internal/gitproto"
	"github.com/crohr/smart-git-proxy/internal/httpadapter"
	"github.com/crohr/smart-git-proxy/internal/logging"
	"github.com/crohr/smart-git-proxy/internal/metrics"
	"github.com/crohr/smart-git-proxy/internal/route53"
	"github.com/crohr/smart-git-proxy/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	metricsRegistry := metrics.New()
	upClient := upstream.NewClient(cfg.UpstreamTimeout, !cfg.HTTPSOnly, cfg.UserAgent)

	be := backend.New(backend.Config{
		Origin:    cfg.Origin,
		HTTPSOnly: cfg.HTTPSOnly,
		EnabledDefaults: map[gitproto.Service]bool{
			gitproto.UploadPack:  cfg.EnabledUploadPackDefault,
			gitproto.ReceivePack: cfg.EnabledReceivePackDefault,
		},
		AllowEmptyPath: cfg.AllowEmptyPath,
	}, upClient, logger)

	ctl := controller.New(be, controller.Config{
		Overrides:   overridesFromAllowList(cfg.OverrideHeaderAllowList),
		PrivacyMode: cfg.PrivacyMode,
	}, logger)
	ctl.OnComplete(metricsRegistry.Observer())

	handler := httpadapter.New(ctl, logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.HealthPath, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.Handle("/", handler)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	cloudMapMgr := startCloudMap(startupCtx, cfg, logger)
	r53Mgr := registerRoute53(startupCtx, cfg, logger)
	cancelStartup()

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "origin", cfg.Origin)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if cloudMapMgr != nil {
		cloudMapMgr.Stop(ctx)
	}
	if r53Mgr != nil {
		if err := r53Mgr.Deregister(ctx); err != nil {
			logger.Error("route53 deregister failed", "err", err)
		}
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

// overridesFromAllowList builds the checkForAuth/checkIfEnabled/
// checkIfExists override set a trusted reverse proxy drives via
// request headers, per SPEC_FULL.md §11.1. Only headers named in
// allowList are honoured; everything else falls through to the
// backend's own probes.
func overridesFromAllowList(allowList []string) controller.Overrides {
	allowed := make(map[string]bool, len(allowList))
	for _, h := range allowList {
		allowed[http.CanonicalHeaderKey(h)] = true
	}
	if len(allowed) == 0 {
		return controller.Overrides{}
	}
	return controller.Overrides{
		CheckForAuth: headerOverride(allowed, "X-Gateway-Auth"),
	}
}

func headerOverride(allowed map[string]bool, header string) controller.CheckFunc {
	canon := http.CanonicalHeaderKey(header)
	if !allowed[canon] {
		return nil
	}
	return func(_ context.Context, gctx *gitcontext.Context) (*bool, error) {
		v := gctx.Headers().Get(canon)
		if v == "" {
			return nil, nil
		}
		ok := v == "ok"
		return &ok, nil
	}
}

func startCloudMap(ctx context.Context, cfg *config.Config, logger *slog.Logger) *cloudmap.Manager {
	if cfg.AWSCloudMapServiceID == "" {
		return nil
	}
	healthURL := "http://127.0.0.1" + cfg.ListenAddr + cfg.HealthPath
	mgr, err := cloudmap.New(ctx, cfg.AWSCloudMapServiceID, healthURL, logger)
	if err != nil {
		logger.Error("cloud map init failed", "err", err)
		return nil
	}
	if err := mgr.Start(ctx); err != nil {
		logger.Error("cloud map registration failed", "err", err)
		return nil
	}
	return mgr
}

func registerRoute53(ctx context.Context, cfg *config.Config, logger *slog.Logger) *route53.Manager {
	if cfg.Route53HostedZoneID == "" {
		return nil
	}
	mgr, err := route53.New(ctx, cfg.Route53HostedZoneID, cfg.Route53RecordName, logger)
	if err != nil {
		logger.Error("route53 init failed", "err", err)
		return nil
	}
	if err := mgr.Register(ctx); err != nil {
		logger.Error("route53 registration failed", "err", err)
		return nil
	}
	return mgr
}
