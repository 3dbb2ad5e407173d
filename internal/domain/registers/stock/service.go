package stock

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/pkg/logger"
)

var tracer = otel.Tracer("stockflow/stock")

// Engine wires validator, calculator, updater and analyzer.
// Its only dependencies are the ports passed in; storage arrives per call as a UnitOfWork or Runner.
type Engine struct {
	validator  *Validator
	calculator *Calculator
	updater    *Updater
	analyzer   *Analyzer
}

// NewEngine creates an engine. notifier may be nil.
func NewEngine(cfg Config, notifier Notifier) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		validator:  NewValidator(cfg.MaxBatchSize),
		calculator: NewCalculator(),
		updater:    NewUpdater(notifier, cfg.Now),
		analyzer:   NewAnalyzer(cfg),
	}
}

// Calculate plans batch inside uow. Structurally invalid batches are rejected
// before any repository is touched.
func (e *Engine) Calculate(ctx context.Context, uow UnitOfWork, batch []Operation) (*Plan, error) {
	ctx, span := tracer.Start(ctx, "stock.calculate",
		trace.WithAttributes(attribute.Int("stock.operations", len(batch))))
	defer span.End()

	if issues := e.validator.Validate(batch); len(issues) > 0 {
		plan := Rejected(len(batch), issues)
		logger.Warn(ctx, "stock batch rejected by validation",
			"operations", len(batch),
			"issues", len(issues),
			"first", issues[0].String(),
		)
		return plan, nil
	}

	snap, err := LoadSnapshot(ctx, uow, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load snapshot")
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	plan := e.calculator.Calculate(batch, snap)
	span.SetAttributes(
		attribute.Int("stock.items", len(plan.AffectedItems)),
		attribute.Bool("stock.can_proceed", plan.CanProceed),
	)

	if plan.CanProceed {
		logger.Debug(ctx, "stock plan calculated",
			"operations", plan.TotalOperations,
			"items", len(plan.AffectedItems),
			"line_changes", len(plan.LineChanges),
		)
	} else {
		logger.Warn(ctx, "stock plan cannot proceed",
			"operations", plan.TotalOperations,
			"items", len(plan.AffectedItems),
			"global_errors", len(plan.GlobalErrors),
			"invalid_items", plan.InvalidItems(),
		)
	}
	return plan, nil
}

// Commit applies a plan produced by Calculate on the same uow.
func (e *Engine) Commit(ctx context.Context, uow UnitOfWork, plan *Plan, actorID *id.ID) (*CommitResult, error) {
	ctx, span := tracer.Start(ctx, "stock.commit")
	defer span.End()

	result, err := e.updater.Commit(ctx, uow, plan, actorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return nil, err
	}
	span.SetAttributes(attribute.Int("stock.items_written", len(result.ItemChanges)))
	return result, nil
}

// Analyze classifies a failed plan or commit error.
func (e *Engine) Analyze(plan *Plan, err error) *ErrorAnalysis {
	return e.analyzer.Analyze(plan, err)
}

// Resolution returns remediation steps for an analysis.
func (e *Engine) Resolution(analysis *ErrorAnalysis) []RemediationStep {
	return e.analyzer.Resolution(analysis)
}

// Apply plans and commits batch in one unit of work.
// Any failure is returned as *Failure carrying the analysis.
func (e *Engine) Apply(ctx context.Context, runner Runner, batch []Operation, actorID *id.ID) (*CommitResult, error) {
	var (
		plan   *Plan
		result *CommitResult
	)

	err := runner.Run(ctx, func(ctx context.Context, uow UnitOfWork) error {
		p, err := e.Calculate(ctx, uow, batch)
		if err != nil {
			return err
		}
		plan = p
		if !p.CanProceed {
			return apperror.NewPlanNotExecutable(len(p.GlobalErrors), p.InvalidItems())
		}

		r, err := e.Commit(ctx, uow, p, actorID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		analysis := e.Analyze(plan, err)
		if analysis != nil {
			logger.Warn(ctx, "stock batch failed",
				"type", analysis.Type,
				"code", analysis.Code,
				"severity", analysis.Severity,
				"can_retry", analysis.CanRetry,
			)
		}
		return nil, &Failure{Analysis: analysis, Plan: plan, Err: err}
	}
	return result, nil
}

// DryRun plans batch in a read-only unit of work. The analysis is nil when the plan can proceed.
func (e *Engine) DryRun(ctx context.Context, runner Runner, batch []Operation) (*Plan, *ErrorAnalysis, error) {
	var plan *Plan
	err := runner.ReadOnly(ctx, func(ctx context.Context, uow UnitOfWork) error {
		p, err := e.Calculate(ctx, uow, batch)
		if err != nil {
			return err
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, e.Analyze(nil, err), err
	}
	return plan, e.Analyze(plan, nil), nil
}
