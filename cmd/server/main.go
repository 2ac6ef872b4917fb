// Command server receives GitBucket push webhooks and triggers the matching
// Jenkins jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"

	"github.com/bucketbridge/bucketbridge/internal/auth"
	"github.com/bucketbridge/bucketbridge/internal/bridge"
	"github.com/bucketbridge/bucketbridge/internal/clients"
	"github.com/bucketbridge/bucketbridge/internal/config"
	"github.com/bucketbridge/bucketbridge/internal/jobs"
	"github.com/bucketbridge/bucketbridge/internal/scm"
	"github.com/bucketbridge/bucketbridge/internal/services"
	"github.com/bucketbridge/bucketbridge/internal/web"
)

const (
	serverShutdownTimeout = 10 * time.Second
	queueShutdownTimeout  = 30 * time.Second
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

// run starts the bridge and blocks until ctx is cancelled or a termination
// signal arrives
func run(ctx context.Context, args []string, logOut io.Writer) error {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	loader := config.NewLoader(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if cfg.Jenkins.URL == "" {
		return errors.New("jenkins.url is required")
	}

	logger, err := config.NewLogger(cfg.LogLevel, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := bridge.NewOpener(logger).Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	if res.Static != nil {
		watching := loader.Watch(func(c *config.Config) {
			res.Static.Replace(c.Jobs)
			logger.Info("reloaded jobs from config file", "jobs", len(c.Jobs))
		}, func(err error) {
			logger.Warn("ignoring invalid config change", "error", err)
		})
		logger.Debug("config watch", "enabled", watching)
	}

	queue := jobs.NewSequentialQueue(logger)
	dispatcher := services.NewPushDispatcher(
		res.Jobs,
		queue,
		scm.NewGitPoller(cfg.GitPath, nil, res.Heads),
		clients.NewJenkinsClient(cfg.Jenkins.URL, cfg.Jenkins.User, cfg.Jenkins.Token),
		services.NewPollLogs(cfg.DataDir),
		logger,
	)

	routerCfg := web.RouterConfig{
		WebhookPath: cfg.WebhookPath,
		Dispatcher:  dispatcher,
		Jobs:        res.Jobs,
		PollLogs:    services.NewPollLogs(cfg.DataDir),
		Annotator:   services.NewLinkAnnotator(),
		Logger:      logger,
	}
	if res.Deliveries != nil {
		routerCfg.Deliveries = res.Deliveries
	}
	if limiter := auth.NewRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.PerMinute); limiter != nil {
		routerCfg.RateLimiter = limiter
		go pruneEvery(ctx, limiter, time.Minute)
	}
	server := web.NewServer(cfg.ListenAddr, web.NewRouter(routerCfg))

	if cfg.LinkCheck.Interval > 0 {
		check := jobs.NewLinkCheckJob(res.Jobs, res.Secrets, clients.NewGitBucketClient(), logger)
		go check.RunEvery(ctx, cfg.LinkCheck.Interval)
	}

	listener, err := listen(ctx, cfg, logger)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	return shutdown(server, queue, logger)
}

// listen opens an ngrok endpoint when a domain is configured, otherwise a
// plain TCP listener on the configured address
func listen(ctx context.Context, cfg *config.Config, logger *slog.Logger) (net.Listener, error) {
	if cfg.Ngrok.Domain == "" {
		l, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
		}
		logger.Info("listening", "addr", l.Addr().String(), "webhook", "/"+cfg.WebhookPath+"/")
		return l, nil
	}

	token := ngrok.WithAuthtokenFromEnv()
	if cfg.Ngrok.Authtoken != "" {
		token = ngrok.WithAuthtoken(cfg.Ngrok.Authtoken)
	}
	tunnel, err := ngrok.Listen(ctx,
		ngrokconfig.HTTPEndpoint(
			ngrokconfig.WithDomain(cfg.Ngrok.Domain),
		),
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("listening tunnel: %w", err)
	}
	logger.Info("tunnel listening", "url", tunnel.URL(), "webhook", tunnel.URL()+"/"+cfg.WebhookPath+"/")
	return tunnel, nil
}

func pruneEvery(ctx context.Context, limiter *auth.RateLimiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}

// shutdown stops accepting webhooks, then lets queued polls finish
func shutdown(server *web.Server, queue *jobs.SequentialQueue, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	qctx, qcancel := context.WithTimeout(context.Background(), queueShutdownTimeout)
	defer qcancel()
	if err := queue.Shutdown(qctx); err != nil {
		return fmt.Errorf("queue shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}
