// Command filed hosts FileService (File Core, C12): the content-addressed
// blob put/get operations spec.md §4.12 describes. It is one of five
// independent BreezeChat daemon binaries, grounded on cmd/warren/main.go's
// cobra shape around the shared pkg/fabric bootstrap.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/littleblus/breezechat/pkg/blobstore"
	"github.com/littleblus/breezechat/pkg/config"
	"github.com/littleblus/breezechat/pkg/fabric"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/rpc"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "filed",
	Short:   "BreezeChat File Core (C12) daemon",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("filed version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("file")
	if err != nil {
		return fmt.Errorf("filed: load config: %w", err)
	}
	if cfg.RPC.MaxRetries > 0 {
		rpc.MaxRetries = cfg.RPC.MaxRetries
	}

	store, err := blobstore.New(cfg.Blob.Root)
	if err != nil {
		return fmt.Errorf("filed: blob store: %w", err)
	}

	f, err := fabric.Start(cfg)
	if err != nil {
		return fmt.Errorf("filed: fabric start: %w", err)
	}
	defer f.Stop()
	f.ServeMetrics(cfg.Metrics.Enabled)

	var server *rpc.Server
	if cfg.TLS.Enabled {
		server, err = rpc.NewServerWithTLS(cfg.TLS.CertDir, store.ServiceDesc())
		if err != nil {
			return fmt.Errorf("filed: tls server: %w", err)
		}
	} else {
		server = rpc.NewServer(store.ServiceDesc())
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(cfg.Service.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	log.Logger.Info().Str("addr", cfg.Service.ListenAddr).Msg("filed listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Logger.Info().Msg("filed shutting down")
	case err := <-errCh:
		return fmt.Errorf("filed: rpc server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Logger.Warn().Msg("filed: rpc server stop timed out")
	}
	return nil
}
