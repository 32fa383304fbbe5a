// Command storaged runs both halves of message storage: Storage Consumer
// (C10), the broker-driven handler that persists, indexes, and offloads
// each published message envelope per spec.md §4.10, and MsgStorageService
// (spec.md §6), the RPC-facing query side (GetHistoryMsg/GetRecentMsg/
// MsgSearch) serving the same relational and search-index ports the
// consumer writes through. The two halves share one process since they
// share state: the consumer writes what the query side reads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/littleblus/breezechat/pkg/broker"
	"github.com/littleblus/breezechat/pkg/config"
	"github.com/littleblus/breezechat/pkg/fabric"
	"github.com/littleblus/breezechat/pkg/fileclient"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/metrics"
	"github.com/littleblus/breezechat/pkg/msgstorage"
	"github.com/littleblus/breezechat/pkg/relational"
	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/searchindex"
	"github.com/littleblus/breezechat/pkg/storageconsumer"
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
	Use:     "storaged",
	Short:   "BreezeChat Storage Consumer (C10) daemon",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("storaged version %s\nCommit: %s\n", Version, Commit))
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
	cfg, err := config.Load("storage")
	if err != nil {
		return fmt.Errorf("storaged: load config: %w", err)
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
		return fmt.Errorf("storaged: relational store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("relational", true, "connected")

	index, err := searchindex.New(cfg.Search.Addresses)
	if err != nil {
		return fmt.Errorf("storaged: search index: %w", err)
	}

	b, err := broker.Connect(cfg.Broker.URL)
	if err != nil {
		metrics.RegisterComponent("broker", false, err.Error())
		return fmt.Errorf("storaged: broker connect: %w", err)
	}
	defer b.Close()
	if err := b.Declare(cfg.Broker.Exchange, cfg.Broker.Queue, ""); err != nil {
		return fmt.Errorf("storaged: broker declare: %w", err)
	}
	metrics.RegisterComponent("broker", true, "connected")

	f, err := fabric.Start(cfg, "file", "user")
	if err != nil {
		return fmt.Errorf("storaged: fabric start: %w", err)
	}
	defer f.Stop()
	f.ServeMetrics(cfg.Metrics.Enabled)

	consumer := &storageconsumer.Service{
		Index: index,
		Store: store,
		Files: fileclient.New(f.Manager),
	}

	query := &msgstorage.Service{
		Store: store,
		Index: index,
		Files: fileclient.New(f.Manager),
		Users: msgstorage.NewUserClient(f.Manager),
	}

	var server *rpc.Server
	if cfg.TLS.Enabled {
		server, err = rpc.NewServerWithTLS(cfg.TLS.CertDir, query.ServiceDesc())
		if err != nil {
			return fmt.Errorf("storaged: tls server: %w", err)
		}
	} else {
		server = rpc.NewServer(query.ServiceDesc())
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(cfg.Service.ListenAddr); err != nil {
			errCh <- err
		}
	}()
	log.Logger.Info().Str("addr", cfg.Service.ListenAddr).Msg("storaged MsgStorageService listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.Consume(ctx, cfg.Broker.Exchange, cfg.Broker.Queue, consumer.Handle); err != nil {
		return fmt.Errorf("storaged: broker consume: %w", err)
	}

	log.Logger.Info().Str("queue", cfg.Broker.Queue).Msg("storaged consuming")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Logger.Info().Msg("storaged shutting down")
	case err := <-errCh:
		return fmt.Errorf("storaged: rpc server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Logger.Warn().Msg("storaged: rpc server stop timed out")
	}
	return nil
}
