package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/dashboard"
	"github.com/sitebook/sitebook/internal/events"
	"github.com/sitebook/sitebook/internal/inbox"
	"github.com/sitebook/sitebook/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Serve the live dashboard and JSON API",
	Long: `Start the dashboard server over the configured store.

The server exposes:
  ws://localhost:8080/ws          live project, task, notification and stats updates
  http://localhost:8080/api/...   JSON API for projects and tasks
  http://localhost:8080/health    health check
  http://localhost:8080/metrics   Prometheus metrics

When inbox.dir is set, export files dropped there are imported. When
events.amqp_url is set, every change is published to the sitebook.events
exchange.

Example usage:
  sb serve                        # default port 8080
  sb serve --port 9000 --inbox ./drop
  sb serve --refresh 1m           # reload from the store every minute`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("port") {
			cfg.Dashboard.Port, _ = flags.GetInt("port")
		}
		if flags.Changed("inbox") {
			cfg.Inbox.Dir, _ = flags.GetString("inbox")
		}
		refresh, _ := flags.GetDuration("refresh")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		server := dashboard.NewServer(&dashboard.Config{
			Port:   cfg.Dashboard.Port,
			Logger: logger,
		})

		loadCtx, loadCancel := commandContext()
		a, err := openApp(loadCtx)
		loadCancel()
		if err != nil {
			return err
		}
		defer a.close()

		handler := dashboard.NewHandler(server, a.manager, logger)
		handler.Attach()
		defer handler.Detach()
		a.notifier.AddSink(handler)

		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		api := dashboard.NewAPI(a.manager, a.notifier, logger)
		api.Register(server)

		if cfg.Events.AMQPURL != "" {
			pub, err := events.Dial(cfg.Events.AMQPURL, logger)
			if err != nil {
				logger.Warn("Change events disabled", zap.Error(err))
			} else {
				pub.Attach(a.manager)
				defer pub.Close()
			}
		}

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		errCh := make(chan error, 1)
		inboxRunning := false
		if cfg.Inbox.Dir != "" {
			in, err := inbox.New(cfg.Inbox.Dir, a.manager, a.notifier, &inbox.Config{
				Debounce: cfg.Inbox.Debounce,
				Logger:   logger,
			})
			if err != nil {
				_ = server.Stop()
				return err
			}
			go func() { errCh <- in.Start(ctx) }()
			inboxRunning = true
			fmt.Printf("Inbox: %s\n", cfg.Inbox.Dir)
		}

		if refresh > 0 {
			go refreshLoop(ctx, a, refresh)
		}

		addr := server.GetAddr()
		fmt.Printf("%s Dashboard server started on http://%s\n", ui.SuccessStyle.Render("✓"), addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Health check: http://%s/health\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		select {
		case <-ctx.Done():
			if inboxRunning {
				<-errCh
			}
		case err := <-errCh:
			if err != nil {
				logger.Error("Inbox stopped", zap.Error(err))
			}
			<-ctx.Done()
		}

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		fmt.Println("Dashboard server stopped")
		return nil
	},
}

// refreshLoop reloads every project from the store on each tick.
func refreshLoop(ctx context.Context, a *app, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetchCtx, cancel := context.WithTimeout(ctx, every)
			if err := a.manager.FetchAll(fetchCtx); err != nil {
				logger.Debug("Refresh did not complete", zap.Error(err))
			}
			cancel()
		}
	}
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("inbox", "", "directory to import dropped export files from")
	serveCmd.Flags().Duration("refresh", 0, "reload from the store at this interval (0 disables)")

	rootCmd.AddCommand(serveCmd)
}
