package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"ndisview/internal/chain"
	"ndisview/internal/config"
	"ndisview/internal/metrics"
	"ndisview/internal/model"
	"ndisview/internal/projector"
)

// Config holds CLI flags for one view.
type Config struct {
	Source   config.Config
	Role     string
	Caller   string
	Admin    string
	Mode     string
	From     string
	Format   string // table|json
	PollSec  int
	HTTPAddr string
}

func main() {
	cfg, err := readFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("view failed: %v", err)
	}
}

// readFlags loads the environment, applies flag overrides and validates once.
func readFlags(args []string) (Config, error) {
	src, err := config.Parse()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Source: src}
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	sources := fs.String("sources", strings.Join(src.Sources, ","), "record sources: file,kafka,snapshot")
	fs.StringVar(&cfg.Source.EventLogPath, "eventlog", src.EventLogPath, "JSONL event log path")
	fs.StringVar(&cfg.Source.SnapshotDir, "snapshot-dir", src.SnapshotDir, "call-result snapshot directory")
	fs.StringVar(&cfg.Source.KafkaBootstrap, "kafka-bootstrap", src.KafkaBootstrap, "kafka bootstrap servers")
	fs.StringVar(&cfg.Role, "role", "participant", "viewer role: administrator|participant|provider")
	fs.StringVar(&cfg.Caller, "caller", "", "caller account address")
	fs.StringVar(&cfg.Admin, "administrator", src.Administrator, "contract administrator address")
	fs.StringVar(&cfg.Mode, "mode", "all", "all|pending|completed|offered")
	fs.StringVar(&cfg.From, "from", "genesis", "first block: genesis|latest|<n>")
	fs.StringVar(&cfg.Format, "format", "table", "table|json")
	fs.IntVar(&cfg.PollSec, "poll", 0, "poll interval seconds (0: run once)")
	fs.StringVar(&cfg.HTTPAddr, "http", "", "http listen for /metrics while polling")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Source.Sources = strings.Split(*sources, ",")
	return cfg, cfg.Source.Validate()
}

func run(cfg Config) error {
	role, ok := model.ParseRole(cfg.Role)
	if !ok {
		return fmt.Errorf("%w: %q", projector.ErrUnknownRole, cfg.Role)
	}
	mode, err := projector.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	from, err := chain.ParseBlock(cfg.From)
	if err != nil {
		return err
	}
	reader, err := cfg.Source.Reader()
	if err != nil {
		return err
	}
	rng := chain.BlockRange{From: from, To: chain.Latest}
	opts := projector.Options{Facts: projector.Facts{Administrator: cfg.Admin}, Mode: mode}

	mreg := metrics.NewRegistry()
	if cfg.HTTPAddr != "" {
		go func() {
			http.Handle("/metrics", mreg.Handler())
			_ = http.ListenAndServe(cfg.HTTPAddr, nil)
		}()
	}

	once := func() error {
		t0 := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.ReadTimeout)
		records, err := reader.ReadRecords(ctx, rng)
		cancel()
		mreg.ObserveRead(t0)
		if err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		rows, stats, err := projector.Project(records, role, cfg.Caller, opts)
		mreg.ObserveProjection(stats, err)
		if err != nil {
			return err
		}
		log.Printf("view cycle: read=%d duplicates=%d filtered=%d emitted=%d took=%.3fs",
			stats.Read, stats.Duplicates, stats.Filtered, stats.Emitted, time.Since(t0).Seconds())
		return render(os.Stdout, cfg.Format, rows)
	}

	if cfg.PollSec <= 0 {
		return once()
	}
	ticker := time.NewTicker(time.Duration(cfg.PollSec) * time.Second)
	defer ticker.Stop()
	for {
		if err := once(); err != nil {
			log.Printf("view: %v", err)
		}
		<-ticker.C
	}
}

func render(w io.Writer, format string, rows []projector.Row) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	// KEY is what an action intent names as its recordKey.
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATE\tREQUESTER\tAMOUNT\tDESCRIPTION\tACTIONS\tWIDGET")
	for _, r := range rows {
		acts := make([]string, 0, len(r.Permitted))
		for _, a := range r.Permitted {
			acts = append(acts, string(a))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Key, r.State, r.Record.RequesterAddress, r.Record.Amount, r.Record.Description, strings.Join(acts, ","), r.WidgetKey)
	}
	return tw.Flush()
}
