// Command speechd hosts SpeechService: the opaque ASR request/response
// port spec.md §6 names. It is one of five independent BreezeChat daemon
// binaries, grounded on cmd/warren/main.go's cobra shape around the shared
// pkg/fabric bootstrap.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/littleblus/breezechat/pkg/config"
	"github.com/littleblus/breezechat/pkg/fabric"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/speech"
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
	Use:     "speechd",
	Short:   "BreezeChat SpeechService daemon",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("speechd version %s\nCommit: %s\n", Version, Commit))
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
	cfg, err := config.Load("speech")
	if err != nil {
		return fmt.Errorf("speechd: load config: %w", err)
	}
	if cfg.RPC.MaxRetries > 0 {
		rpc.MaxRetries = cfg.RPC.MaxRetries
	}

	recognizer := speech.New(http.DefaultClient, cfg.Speech.URL)

	f, err := fabric.Start(cfg)
	if err != nil {
		return fmt.Errorf("speechd: fabric start: %w", err)
	}
	defer f.Stop()
	f.ServeMetrics(cfg.Metrics.Enabled)

	var server *rpc.Server
	if cfg.TLS.Enabled {
		server, err = rpc.NewServerWithTLS(cfg.TLS.CertDir, speech.ServiceDesc(recognizer))
		if err != nil {
			return fmt.Errorf("speechd: tls server: %w", err)
		}
	} else {
		server = rpc.NewServer(speech.ServiceDesc(recognizer))
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(cfg.Service.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	log.Logger.Info().Str("addr", cfg.Service.ListenAddr).Msg("speechd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Logger.Info().Msg("speechd shutting down")
	case err := <-errCh:
		return fmt.Errorf("speechd: rpc server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Logger.Warn().Msg("speechd: rpc server stop timed out")
	}
	return nil
}
