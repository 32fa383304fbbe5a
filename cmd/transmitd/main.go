// Command transmitd hosts MsgTransmitService (Transmit Core, C9): compose
// and publish the canonical message envelope spec.md §4.9 describes. It is
// one of five independent BreezeChat daemon binaries, grounded on
// cmd/warren/main.go's cobra shape around the shared pkg/fabric bootstrap.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/littleblus/breezechat/pkg/broker"
	"github.com/littleblus/breezechat/pkg/config"
	"github.com/littleblus/breezechat/pkg/fabric"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/metrics"
	"github.com/littleblus/breezechat/pkg/relational"
	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/transmit"
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
	Use:     "transmitd",
	Short:   "BreezeChat Transmit Core (C9) daemon",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("transmitd version %s\nCommit: %s\n", Version, Commit))
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
	cfg, err := config.Load("transmit")
	if err != nil {
		return fmt.Errorf("transmitd: load config: %w", err)
	}
	if cfg.RPC.MaxRetries > 0 {
		rpc.MaxRetries = cfg.RPC.MaxRetries
	}

	store, err := relational.New(relational.Config{
		DSN:             cfg.Relational.DSN,
		MaxOpenConns:    cfg.Relational.MaxOpenConns,
		ConnMaxLifetime: cfg.Relational.ConnMaxLifetime,
	})
	if err != nil {
		metrics.RegisterComponent("relational", false, err.Error())
		return fmt.Errorf("transmitd: relational store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("relational", true, "connected")

	b, err := broker.Connect(cfg.Broker.URL)
	if err != nil {
		metrics.RegisterComponent("broker", false, err.Error())
		return fmt.Errorf("transmitd: broker connect: %w", err)
	}
	defer b.Close()
	if err := b.Declare(cfg.Broker.Exchange, cfg.Broker.Queue, ""); err != nil {
		return fmt.Errorf("transmitd: broker declare: %w", err)
	}
	metrics.RegisterComponent("broker", true, "connected")

	f, err := fabric.Start(cfg, "user")
	if err != nil {
		return fmt.Errorf("transmitd: fabric start: %w", err)
	}
	defer f.Stop()
	f.ServeMetrics(cfg.Metrics.Enabled)

	svc := &transmit.Service{
		Users:    transmit.NewUserClient(f.Manager),
		Sessions: store,
		Pub:      b,
		Exchange: cfg.Broker.Exchange,
	}

	var server *rpc.Server
	if cfg.TLS.Enabled {
		server, err = rpc.NewServerWithTLS(cfg.TLS.CertDir, svc.ServiceDesc())
		if err != nil {
			return fmt.Errorf("transmitd: tls server: %w", err)
		}
	} else {
		server = rpc.NewServer(svc.ServiceDesc())
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(cfg.Service.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	log.Logger.Info().Str("addr", cfg.Service.ListenAddr).Msg("transmitd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Logger.Info().Msg("transmitd shutting down")
	case err := <-errCh:
		return fmt.Errorf("transmitd: rpc server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Logger.Warn().Msg("transmitd: rpc server stop timed out")
	}
	return nil
}
