// tagtracer is an operator tool for the local scan history and the simulated
// reader: it can run a scan, write an id, list or clear the history and
// resolve profile addresses without starting the daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/tagtracer/internal/config"
	"github.com/BrandonDHaskell/tagtracer/internal/db"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/service"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store/memory"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store/sqlite"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

type options struct {
	dbPath        string
	ephemeral     bool
	delay         time.Duration
	successRate   float64
	seed          uint64
	adminPassword string
	jsonOut       bool
	verbose       bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, out io.Writer) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	var opt options
	flagSet := pflag.NewFlagSet("tagtracer", pflag.ContinueOnError)
	flagSet.StringVar(&opt.dbPath, "db", cfg.DBPath, "path to the SQLite history database")
	flagSet.BoolVar(&opt.ephemeral, "ephemeral", cfg.Store == "memory", "keep history in memory only")
	flagSet.DurationVar(&opt.delay, "delay", cfg.SimDelay, "simulated reader delay, non-zero (negative for none)")
	flagSet.Float64Var(&opt.successRate, "success-rate", cfg.SimSuccessRate, "simulated success probability in (0, 1]")
	flagSet.Uint64Var(&opt.seed, "seed", 0, "seed the simulated reader (0 for random)")
	flagSet.StringVar(&opt.adminPassword, "admin-password", "", "admin password required by write")
	flagSet.BoolVar(&opt.jsonOut, "json", false, "print JSON")
	flagSet.BoolVarP(&opt.verbose, "verbose", "v", false, "log to stderr")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if err := config.CheckSim(opt.delay, opt.successRate); err != nil {
		return fmt.Errorf("--delay/--success-rate: %w", err)
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}

	logger := log.New(io.Discard, "", 0)
	if opt.verbose {
		logger = log.New(os.Stderr, "tagtracer ", log.LstdFlags|log.LUTC)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, opt)
	if err != nil {
		return err
	}
	defer closeStore()

	tracer, err := newTracer(cfg, opt, kv, logger)
	if err != nil {
		return err
	}
	defer tracer.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "scan":
		return runScan(ctx, tracer, opt, out)
	case "write":
		if len(rest) != 1 {
			return errors.New("usage: tagtracer write <account-id>")
		}
		return runWrite(ctx, tracer, opt, rest[0], out)
	case "history":
		return runHistory(ctx, tracer, opt, out)
	case "clear":
		if err := tracer.ClearHistory(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "history cleared")
		return nil
	case "profile":
		if len(rest) != 1 {
			return errors.New("usage: tagtracer profile <account-id>")
		}
		url, err := tracer.ProfileURL(rest[0])
		if err != nil {
			return err
		}
		return emit(out, opt, types.ProfileResponse{AccountID: rest[0], URL: url}, url)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openStore(ctx context.Context, opt options) (store.KVStore, func(), error) {
	if opt.ephemeral {
		return memory.NewKVStore(), func() {}, nil
	}
	conn, err := db.Open(ctx, db.Config{Path: opt.dbPath})
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	writer := db.NewWorker(conn)
	return sqlite.NewKVStore(conn, writer), func() {
		writer.Close()
		_ = conn.Close()
	}, nil
}

func newTracer(cfg config.Config, opt options, kv store.KVStore, logger *log.Logger) (*service.Tracer, error) {
	sc := source.SimConfig{
		Delay:       opt.delay,
		SuccessRate: opt.successRate,
		DemoID:      cfg.SimDemoID,
		DemoRate:    cfg.SimDemoRate,
	}
	if opt.seed != 0 {
		sc.Rand = rand.New(rand.NewPCG(opt.seed, opt.seed))
	}

	policy := service.AdminPolicy{Open: cfg.AdminOpen, PasswordHash: cfg.AdminPasswordHash}
	if policy.PasswordHash == "" && cfg.AdminPassword != "" {
		h, err := service.HashAdminPassword(cfg.AdminPassword)
		if err != nil {
			return nil, err
		}
		policy.PasswordHash = h
	}

	return service.NewTracer(service.TracerDeps{
		Source:         source.NewSimulated(sc),
		History:        service.NewHistoryLog(kv, logger),
		Gate:           service.NewAdminGate(policy),
		ProfileBaseURL: cfg.ProfileBaseURL,
		Logger:         logger,
	}), nil
}

func runScan(ctx context.Context, tracer *service.Tracer, opt options, out io.Writer) error {
	outcomes := make(chan types.ScanOutcome, 1)
	unsub := tracer.OnOutcome(func(o types.ScanOutcome) { outcomes <- o })
	defer unsub()

	if _, err := tracer.StartScan(ctx); err != nil {
		return err
	}

	select {
	case o := <-outcomes:
		if !o.Success() {
			_ = emit(out, opt, o, "scan failed: "+o.Message)
			return o.Kind
		}
		url, _ := tracer.ProfileURL(o.AccountID)
		return emit(out, opt, o, fmt.Sprintf("%s  %s", o.AccountID, url))
	case <-ctx.Done():
		tracer.CancelScan()
		return ctx.Err()
	}
}

func runWrite(ctx context.Context, tracer *service.Tracer, opt options, id string, out io.Writer) error {
	if err := tracer.AuthorizeAdmin(opt.adminPassword); err != nil {
		return err
	}
	if err := tracer.WriteTag(ctx, id); err != nil {
		return err
	}
	return emit(out, opt, types.WriteTagResponse{OK: true, AccountID: id}, "wrote "+id)
}

func runHistory(ctx context.Context, tracer *service.Tracer, opt options, out io.Writer) error {
	recs, err := tracer.History(ctx)
	if err != nil {
		return err
	}
	if opt.jsonOut {
		return emit(out, opt, types.HistoryResponse{Records: recs}, "")
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "no scans recorded")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(out, "%s  %s\n", r.AccountID, r.Time().Local().Format(time.DateTime))
	}
	return nil
}

func emit(out io.Writer, opt options, v any, text string) error {
	if opt.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tagtracer: scan and write account tags with the simulated reader.

Usage:
  tagtracer [flags] scan
  tagtracer [flags] write <account-id>
  tagtracer [flags] history
  tagtracer [flags] clear
  tagtracer [flags] profile <account-id>

Flags:
%s`, flagSet.FlagUsages())
}
