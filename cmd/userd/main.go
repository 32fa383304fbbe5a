// Command userd hosts UserService (User Core, C11): the account/session
// lifecycle, verification codes, and profile writes spec.md §4.11
// describes. It is one of five independent BreezeChat daemon binaries,
// each a thin cobra root command in the shape of cmd/warren/main.go's
// subcommands (persistent log flags wired through cobra.OnInitialize,
// graceful shutdown on SIGINT/SIGTERM) around the shared pkg/fabric
// bootstrap and this service's domain package.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/littleblus/breezechat/pkg/blobstore"
	"github.com/littleblus/breezechat/pkg/classifier"
	"github.com/littleblus/breezechat/pkg/config"
	"github.com/littleblus/breezechat/pkg/email"
	"github.com/littleblus/breezechat/pkg/fabric"
	"github.com/littleblus/breezechat/pkg/fileclient"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/metrics"
	"github.com/littleblus/breezechat/pkg/relational"
	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/searchindex"
	"github.com/littleblus/breezechat/pkg/user"
	"github.com/littleblus/breezechat/pkg/verifcache"
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
	Use:     "userd",
	Short:   "BreezeChat User Core (C11) daemon",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("userd version %s\nCommit: %s\n", Version, Commit))
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
	cfg, err := config.Load("user")
	if err != nil {
		return fmt.Errorf("userd: load config: %w", err)
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
		return fmt.Errorf("userd: relational store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("relational", true, "connected")

	index, err := searchindex.New(cfg.Search.Addresses)
	if err != nil {
		return fmt.Errorf("userd: search index: %w", err)
	}

	cache, err := verifcache.Open(cfg.Cache.DataDir)
	if err != nil {
		return fmt.Errorf("userd: verification cache: %w", err)
	}
	defer cache.Close()

	f, err := fabric.Start(cfg, "file")
	if err != nil {
		return fmt.Errorf("userd: fabric start: %w", err)
	}
	defer f.Stop()
	f.ServeMetrics(cfg.Metrics.Enabled)

	classify := classifier.New(http.DefaultClient, cfg.Classifier.ChannelURL, cfg.Classifier.LLMURL)
	mailer := email.NewSMTPSender(cfg.Email.Host, cfg.Email.Port, cfg.Email.From, cfg.Email.Username, cfg.Email.Password)

	svc := &user.Service{
		Store:    store,
		Index:    index,
		Cache:    cache,
		Files:    fileclient.New(f.Manager),
		Classify: classify,
		Mailer:   mailer,
		Salt:     cfg.User.PasswordSalt,
	}

	var server *rpc.Server
	if cfg.TLS.Enabled {
		server, err = rpc.NewServerWithTLS(cfg.TLS.CertDir, svc.ServiceDesc())
		if err != nil {
			return fmt.Errorf("userd: tls server: %w", err)
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

	log.Logger.Info().Str("addr", cfg.Service.ListenAddr).Msg("userd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Logger.Info().Msg("userd shutting down")
	case err := <-errCh:
		return fmt.Errorf("userd: rpc server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Logger.Warn().Msg("userd: rpc server stop timed out")
	}
	return nil
}
