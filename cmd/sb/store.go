package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitebook/sitebook/internal/config"
	"github.com/sitebook/sitebook/internal/dashboard"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/store/loadtest"
	"github.com/sitebook/sitebook/internal/store/sqldb"
	"github.com/sitebook/sitebook/internal/ui"
)

var storeCmd = &cobra.Command{
	Use:     "store",
	GroupID: "data",
	Short:   "Inspect and sync the document store",
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store connection and contents",
	Long: `Display the configured store, whether it is reachable, and how many projects
and tasks it holds. When the store is unreachable the offline cache is read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		online := true
		var pingErr error
		if p, ok := a.store.(store.Pinger); ok {
			pingErr = p.Ping(ctx)
			online = pingErr == nil
		}
		stats := dashboard.ComputeStats(a.manager.Projects())

		if jsonOutput {
			return printJSON(struct {
				Driver string              `json:"driver"`
				Online bool                `json:"online"`
				Stats  dashboard.StatsData `json:"stats"`
			}{cfg.Store.Driver, online, stats})
		}

		fmt.Printf("\n%s Store Status\n\n", ui.TitleStyle.Render("▣"))
		fmt.Printf("Driver: %s\n", cfg.Store.Driver)
		switch cfg.Store.Driver {
		case config.DriverPostgres:
			fmt.Printf("URL: %s\n", ui.MutedStyle.Render("(set)"))
		case config.DriverLibSQL:
			fmt.Printf("Primary: %s\n", cfg.Store.URL)
			fmt.Printf("Replica: %s\n", cfg.Store.Path)
		default:
			fmt.Printf("Location: %s\n", cfg.Store.Path)
			if info, err := os.Stat(cfg.Store.Path); err == nil {
				fmt.Printf("Size: %s\n", formatSize(info.Size()))
				fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			}
		}
		if cfg.Cache.Dir != "" {
			abs, _ := filepath.Abs(cfg.Cache.Dir)
			fmt.Printf("Offline cache: %s\n", abs)
		}
		if online {
			fmt.Printf("Connection: %s\n", ui.SuccessStyle.Render("online"))
		} else {
			fmt.Printf("Connection: %s (%v)\n", ui.ErrorStyle.Render("offline"), pingErr)
		}
		fmt.Printf("Projects: %d\n", stats.Projects)
		fmt.Printf("Tasks: %d (%d completed)\n", stats.Todos, stats.Completed)
		fmt.Println()
		return nil
	},
}

var storeSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the latest changes from the primary",
	Long: `Pull from the primary database when the store is a libsql embedded replica,
then refresh the offline cache from the store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		start := time.Now()
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		frames := 0
		if s, ok := st.(store.Syncer); ok {
			frames, err = s.Sync(ctx)
			if err != nil {
				_ = st.Close()
				return fmt.Errorf("sync failed: %w", err)
			}
		}
		_ = st.Close()

		// Loading every project through the cached store refreshes the cache.
		a, err := openCLI(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Printf("%s Sync complete in %v\n", ui.SuccessStyle.Render("✓"), time.Since(start).Round(time.Millisecond))
		if cfg.Store.Driver == config.DriverLibSQL {
			fmt.Printf("   Frames: %d\n", frames)
		}
		fmt.Printf("   Projects: %d\n", len(a.manager.Projects()))
		return nil
	},
}

var storeBenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure full-load latency under concurrent clients",
	Long: `Seed a scratch SQLite database and time concurrent full loads (every project
and its tasks), as the dashboard does for each client.

With --configured the loads run read-only against the configured store
instead, without seeding.

  sb store bench --clients 100 --projects 200 --todos 10
  sb store bench --configured --clients 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		clients, _ := flags.GetInt("clients")
		loads, _ := flags.GetInt("loads")
		numProjects, _ := flags.GetInt("projects")
		numTodos, _ := flags.GetInt("todos")
		configured, _ := flags.GetBool("configured")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		var st store.Store
		if configured {
			s, err := openRemote(ctx, cfg, logger)
			if err != nil {
				return err
			}
			st = s
		} else {
			dir, err := os.MkdirTemp("", "sitebook-bench-")
			if err != nil {
				return fmt.Errorf("failed to create scratch directory: %w", err)
			}
			defer os.RemoveAll(dir)
			db, err := sqldb.Open(filepath.Join(dir, "bench.db"))
			if err != nil {
				return err
			}
			st = db

			fmt.Printf("Seeding %d projects with %d tasks each...\n", numProjects, numTodos)
			if _, err := loadtest.Seed(ctx, st, numProjects, numTodos); err != nil {
				_ = st.Close()
				return err
			}
		}
		defer st.Close()

		fmt.Printf("Running %d clients x %d loads...\n\n", clients, loads)
		stats, err := loadtest.Run(ctx, st, clients, loads)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}
		stats.Print(os.Stdout)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = filepath.Join(config.DirName, config.FileName)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.SuccessStyle.Render("✓"), path)
		return nil
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%d bytes", size)
}

func init() {
	storeBenchCmd.Flags().Int("clients", 50, "concurrent clients")
	storeBenchCmd.Flags().Int("loads", 10, "full loads per client")
	storeBenchCmd.Flags().Int("projects", 100, "projects to seed")
	storeBenchCmd.Flags().Int("todos", 10, "tasks to seed per project")
	storeBenchCmd.Flags().Bool("configured", false, "load from the configured store without seeding")

	storeCmd.AddCommand(storeStatusCmd)
	storeCmd.AddCommand(storeSyncCmd)
	storeCmd.AddCommand(storeBenchCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(initCmd)
}
