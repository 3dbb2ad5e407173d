// Package main is the stockctl CLI: it plans and applies stock batches against Postgres.
//
// Usage:
//
//	stockctl apply <batch.json> [actor-id]
//	stockctl plan <batch.json>
//	stockctl history <entity-type> <entity-id> [limit]
//	stockctl schema
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/registers/stock"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/internal/infrastructure/storage/postgres/auth_repo"
	"stockflow/internal/infrastructure/storage/postgres/document_repo"
	"stockflow/internal/infrastructure/storage/postgres/register_repo"
	"stockflow/pkg/config"
	"stockflow/pkg/logger"
)

const defaultHistoryLimit = 50

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())

	cli, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer cli.close()

	args := os.Args[2:]
	switch os.Args[1] {
	case "apply":
		err = cli.apply(ctx, args)
	case "plan":
		err = cli.plan(ctx, args)
	case "history":
		err = cli.history(ctx, args)
	case "schema":
		err = postgres.EnsureSchema(ctx, cli.pool)
		if err == nil {
			log.Info("schema applied")
		}
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		var failure *stock.Failure
		if errors.As(err, &failure) {
			_ = printJSON(os.Stdout, failureReport{
				Analysis:   failure.Analysis,
				Resolution: cli.engine.Resolution(failure.Analysis),
			})
			os.Exit(1)
		}
		log.Errorw("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  stockctl apply <batch.json> [actor-id]
  stockctl plan <batch.json>
  stockctl history <entity-type> <entity-id> [limit]
  stockctl schema`)
}

type app struct {
	pool   *postgres.Pool
	store  *postgres.Store
	audit  *postgres.AuditSink
	engine *stock.Engine
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pool, err := postgres.NewPool(ctx, cfg.PoolConfig())
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	txManager := postgres.NewTxManager(pool).WithDefaults(cfg.TxOptions())

	audit, err := postgres.NewAuditSink(txManager)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit sink: %w", err)
	}

	store := postgres.NewStore(txManager, postgres.Repositories{
		Items:     register_repo.NewItemRepo(txManager),
		Orders:    document_repo.NewPurchaseOrderRepo(txManager),
		Actors:    auth_repo.NewActorRepo(txManager),
		Movements: register_repo.NewMovementRepo(txManager),
		Audit:     audit,
	})

	// Alerts go to the outbox in the same transaction; the worker relays them.
	notifier := postgres.NewOutboxNotifier(postgres.NewOutboxPublisher(txManager))

	return &app{
		pool:   pool,
		store:  store,
		audit:  audit,
		engine: stock.NewEngine(cfg.EngineConfig(), notifier),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}

type failureReport struct {
	Analysis   *stock.ErrorAnalysis    `json:"analysis"`
	Resolution []stock.RemediationStep `json:"resolution,omitempty"`
}

type planReport struct {
	Plan       *stock.Plan             `json:"plan"`
	Analysis   *stock.ErrorAnalysis    `json:"analysis,omitempty"`
	Resolution []stock.RemediationStep `json:"resolution,omitempty"`
}

func (a *app) apply(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("apply: batch file required")
	}
	batch, err := readBatch(args[0])
	if err != nil {
		return err
	}

	var actorID *id.ID
	if len(args) > 1 {
		v, err := id.Parse(args[1])
		if err != nil {
			return fmt.Errorf("apply: invalid actor id: %w", err)
		}
		actorID = &v
		ctx = appctx.WithActor(ctx, &appctx.ActorContext{ActorID: v.String(), Source: "stockctl"})
	}

	result, err := a.engine.Apply(ctx, a.store, batch, actorID)
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock batch applied",
		"operations", len(batch),
		"items", len(result.ItemChanges),
		"alerts", len(result.Alerts),
		"elapsed", result.Elapsed,
	)
	return printJSON(os.Stdout, result)
}

func (a *app) plan(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("plan: batch file required")
	}
	batch, err := readBatch(args[0])
	if err != nil {
		return err
	}

	plan, analysis, err := a.engine.DryRun(ctx, a.store, batch)
	if err != nil {
		return &stock.Failure{Analysis: analysis, Plan: plan, Err: err}
	}

	report := planReport{Plan: plan, Analysis: analysis}
	if analysis != nil {
		report.Resolution = a.engine.Resolution(analysis)
	}
	return printJSON(os.Stdout, report)
}

func (a *app) history(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("history: entity type and id required")
	}
	entityID, err := id.Parse(args[1])
	if err != nil {
		return fmt.Errorf("history: invalid entity id: %w", err)
	}

	limit := defaultHistoryLimit
	if len(args) > 2 {
		limit, err = strconv.Atoi(args[2])
		if err != nil || limit <= 0 {
			return fmt.Errorf("history: invalid limit %q", args[2])
		}
	}

	entries, err := a.audit.History(ctx, args[0], entityID, limit)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, entries)
}

func readBatch(path string) ([]stock.Operation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()
	return decodeBatch(f)
}

// decodeBatch accepts either a bare array of operations or {"operations": [...]}.
func decodeBatch(r io.Reader) ([]stock.Operation, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}

	var ops []stock.Operation
	if err := json.Unmarshal(raw, &ops); err == nil {
		return ops, nil
	}

	var wrapped struct {
		Operations []stock.Operation `json:"operations"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, apperror.NewValidation("decode batch: expected an array of operations or an object with an operations field").
			WithCause(err)
	}
	return wrapped.Operations, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
