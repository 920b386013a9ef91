package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ndisview/internal/api"
	"ndisview/internal/auth"
	"ndisview/internal/chain"
	"ndisview/internal/config"
	"ndisview/internal/directory"
	"ndisview/internal/metrics"
)

func main() {
	cfg, err := readFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("projectord failed: %v", err)
	}
}

// readFlags loads the environment, lets flags override it and validates the
// result once.
func readFlags(args []string) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, err
	}
	fs := flag.NewFlagSet("projectord", flag.ContinueOnError)
	sources := fs.String("sources", strings.Join(cfg.Sources, ","), "record sources: file,kafka,snapshot")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "http listen address")
	fs.StringVar(&cfg.EventLogPath, "eventlog", cfg.EventLogPath, "JSONL event log path")
	fs.StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "call-result snapshot directory")
	fs.StringVar(&cfg.KafkaBootstrap, "kafka-bootstrap", cfg.KafkaBootstrap, "kafka bootstrap servers, e.g. localhost:9092")
	fs.StringVar(&cfg.DirectoryDir, "directory-dir", cfg.DirectoryDir, "pebble directory for accounts (empty: in memory)")
	fs.StringVar(&cfg.ContractDump, "contract-dump", cfg.ContractDump, "contract state dump to restore the directory from")
	fs.StringVar(&cfg.Administrator, "administrator", cfg.Administrator, "contract administrator address")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg.Sources = strings.Split(*sources, ",")
	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	log.Printf("starting projectord addr=%s sources=%v", cfg.HTTPAddr, cfg.Sources)

	reader, err := cfg.Reader()
	if err != nil {
		return fmt.Errorf("init reader: %w", err)
	}

	var writer chain.Writer
	if cfg.KafkaBootstrap != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		ks, err := chain.NewKafkaSubmitter(ctx, cfg.KafkaBootstrap, cfg.IntentsTopic, cfg.TransactionalID)
		cancel()
		if err != nil {
			return fmt.Errorf("init submitter: %w", err)
		}
		defer ks.Close()
		writer = ks
	} else {
		fs, err := chain.NewFileSubmitter(cfg.IntentsDir, "intents.jsonl")
		if err != nil {
			return fmt.Errorf("init submitter: %w", err)
		}
		log.Printf("no kafka bootstrap; journaling intents under %s", cfg.IntentsDir)
		writer = fs
	}

	var store directory.Store
	if cfg.DirectoryDir != "" {
		ps, err := directory.NewPebbleStore(cfg.DirectoryDir)
		if err != nil {
			return fmt.Errorf("init directory: %w", err)
		}
		defer ps.Close()
		store = ps
	} else {
		store = directory.NewInMemoryStore()
	}
	resolver, err := directory.NewResolver(store, cfg.Administrator)
	if err != nil {
		return err
	}
	if cfg.ContractDump != "" {
		dump, err := directory.ReadDump(cfg.ContractDump)
		if err != nil {
			return err
		}
		if err := resolver.Restore(dump); err != nil {
			return err
		}
		log.Printf("directory restored from %s accounts=%d funds=%s", cfg.ContractDump, len(dump.Accounts), dump.ParticipantFunds)
	}
	if resolver.Facts().Administrator == "" {
		log.Printf("no administrator configured; administrator calls will be withheld")
	}

	creds, err := auth.FromEnv()
	if err != nil {
		return err
	}
	if !creds.Configured() {
		log.Printf("no role credentials configured; action submissions will be refused")
	}

	h := api.NewHandler(api.Deps{
		Reader:        reader,
		Writer:        writer,
		Directory:     resolver,
		Credentials:   creds,
		Metrics:       metrics.NewRegistry(),
		ReadTimeout:   cfg.ReadTimeout,
		SubmitTimeout: cfg.SubmitTimeout,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case s := <-sig:
		log.Printf("received %s, shutting down", s)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
