package stock

import (
	"context"
	"errors"
	"strings"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
)

// ErrorType is the taxonomy of a failed batch.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeConstraint   ErrorType = "CONSTRAINT"
	ErrorTypeBusinessRule ErrorType = "BUSINESS_RULE"
	ErrorTypeSystem       ErrorType = "SYSTEM"
	ErrorTypePermission   ErrorType = "PERMISSION"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
)

// Severity of a failure.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityOrder = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) escalate() Severity {
	for i, v := range severityOrder {
		if v == s && i+1 < len(severityOrder) {
			return severityOrder[i+1]
		}
	}
	return s
}

// codeTypes maps issue codes to the taxonomy. Unknown codes are SYSTEM.
var codeTypes = map[string]ErrorType{
	apperror.CodeValidation:       ErrorTypeValidation,
	apperror.CodeInvalidQuantity:  ErrorTypeValidation,
	apperror.CodeInvalidDirection: ErrorTypeValidation,
	apperror.CodeUnknownReason:    ErrorTypeValidation,
	apperror.CodeEmptyBatch:       ErrorTypeValidation,

	apperror.CodeNotFound:         ErrorTypeNotFound,
	apperror.CodeResourceNotFound: ErrorTypeNotFound,

	apperror.CodeInactiveResource:        ErrorTypeBusinessRule,
	apperror.CodeOrderNotReceivable:      ErrorTypeBusinessRule,
	apperror.CodeReasonDirectionMismatch: ErrorTypeBusinessRule,
	apperror.CodeBusinessRule:            ErrorTypeBusinessRule,

	apperror.CodeInsufficientStock:        ErrorTypeConstraint,
	apperror.CodeStockLimitExceeded:       ErrorTypeConstraint,
	apperror.CodeOrderConstraintViolation: ErrorTypeConstraint,
	apperror.CodeDuplicateEdit:            ErrorTypeConstraint,
	apperror.CodeBatchTooLarge:            ErrorTypeConstraint,

	apperror.CodeForbidden:    ErrorTypePermission,
	apperror.CodeUnauthorized: ErrorTypePermission,
}

// typePrecedence picks the primary type when a plan fails for several reasons.
var typePrecedence = []ErrorType{
	ErrorTypeValidation,
	ErrorTypeNotFound,
	ErrorTypePermission,
	ErrorTypeBusinessRule,
	ErrorTypeConstraint,
	ErrorTypeSystem,
}

var baseSeverity = map[ErrorType]Severity{
	ErrorTypeValidation:   SeverityLow,
	ErrorTypeNotFound:     SeverityMedium,
	ErrorTypeBusinessRule: SeverityMedium,
	ErrorTypeConstraint:   SeverityMedium,
	ErrorTypePermission:   SeverityHigh,
	ErrorTypeSystem:       SeverityHigh,
}

// ItemReport lists the issues of one item in an analysis.
type ItemReport struct {
	ItemID     id.ID      `json:"itemId"`
	ItemName   string     `json:"itemName"`
	StockLevel StockLevel `json:"stockLevel"`
	Errors     []Issue    `json:"errors,omitempty"`
	Warnings   []Issue    `json:"warnings,omitempty"`
}

// ErrorAnalysis is the structured report of a failed batch.
type ErrorAnalysis struct {
	Type            ErrorType    `json:"type"`
	Severity        Severity     `json:"severity"`
	Code            string       `json:"code"`
	RootCause       string       `json:"rootCause"`
	CanRetry        bool         `json:"canRetry"`
	TotalOperations int          `json:"totalOperations"`
	AffectedItems   int          `json:"affectedItems"`
	GlobalErrors    []Issue      `json:"globalErrors,omitempty"`
	Items           []ItemReport `json:"items,omitempty"`

	// Codes lists every distinct error code found, primary code first.
	Codes []string `json:"codes"`
}

// RemediationStep is a suggested action for one error code.
type RemediationStep struct {
	Code   string `json:"code"`
	Action string `json:"action"`
}

var remediations = map[string][]string{
	apperror.CodeInsufficientStock: {
		"Reduce the outbound quantity to the available stock",
		"Receive pending purchase orders before consuming the item",
	},
	apperror.CodeStockLimitExceeded: {
		"Reduce the inbound quantity so the item stays within its maximum",
		"Raise the item's maximum quantity if the capacity has changed",
	},
	apperror.CodeOrderConstraintViolation: {
		"Check the ordered and already received quantities of the order line",
		"Link the receipt to the order line of the same item",
	},
	apperror.CodeInactiveResource: {
		"Reactivate the item or actor, or remove it from the batch",
	},
	apperror.CodeResourceNotFound: {
		"Verify the referenced item, order, line, actor or movement exists",
		"Reload the data; it may have been deleted concurrently",
	},
	apperror.CodeNotFound: {
		"Verify the referenced record exists",
	},
	apperror.CodeOrderNotReceivable: {
		"Only fulfilled or partially received orders can receive goods",
		"Remove operations linked to cancelled orders",
	},
	apperror.CodeReasonDirectionMismatch: {
		"Use a reason that matches the movement direction",
		"Attach the borrowing actor to BORROW movements",
	},
	apperror.CodeDuplicateEdit: {
		"Submit at most one edit per previous movement in a batch",
	},
	apperror.CodeBatchTooLarge: {
		"Split the batch into smaller batches",
	},
	apperror.CodeEmptyBatch: {
		"Submit at least one operation",
	},
	apperror.CodeInvalidQuantity: {
		"Use a positive quantity of at most 999999 with at most two decimal places",
	},
	apperror.CodeInvalidDirection: {
		"Use INBOUND or OUTBOUND",
	},
	apperror.CodeUnknownReason: {
		"Use one of the supported movement reasons or leave it empty",
	},
	apperror.CodeValidation: {
		"Correct the highlighted fields and resubmit",
	},
	apperror.CodeForbidden: {
		"Ask an administrator for the required permission",
	},
	apperror.CodeConcurrentModification: {
		"Retry the batch; another transaction changed the same records",
	},
	apperror.CodeDatabase: {
		"Retry the batch",
		"Contact support if the problem persists",
	},
	apperror.CodeTimeout: {
		"Retry the batch, possibly split into smaller batches",
	},
	apperror.CodeInternal: {
		"Contact support with the trace id",
	},
}

// Analyzer turns a failed plan or commit error into an ErrorAnalysis. It never mutates state.
type Analyzer struct {
	operationThreshold int
	itemThreshold      int
}

// NewAnalyzer creates an analyzer with the severity thresholds from cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	cfg = cfg.withDefaults()
	return &Analyzer{
		operationThreshold: cfg.SeverityOperationThreshold,
		itemThreshold:      cfg.SeverityItemThreshold,
	}
}

// Analyze classifies a failure. err, when present and not a plan rejection, is treated as the
// primary cause. Returns nil when there is nothing to report.
func (a *Analyzer) Analyze(plan *Plan, err error) *ErrorAnalysis {
	if apperror.HasCode(err, apperror.CodePlanNotExecutable) && plan != nil {
		err = nil
	}
	if err == nil && (plan == nil || plan.CanProceed) {
		return nil
	}

	analysis := &ErrorAnalysis{}
	if plan != nil {
		analysis.TotalOperations = plan.TotalOperations
		analysis.AffectedItems = len(plan.AffectedItems)
		analysis.GlobalErrors = plan.GlobalErrors
		for _, r := range plan.Results {
			if len(r.Errors) == 0 && len(r.Warnings) == 0 {
				continue
			}
			analysis.Items = append(analysis.Items, ItemReport{
				ItemID:     r.ItemID,
				ItemName:   r.ItemName,
				StockLevel: r.StockLevel,
				Errors:     r.Errors,
				Warnings:   r.Warnings,
			})
		}
	}

	var codes []string
	if err != nil {
		a.classifyError(analysis, err)
	} else {
		a.classifyPlan(analysis, plan)
	}
	codes = append(codes, analysis.Code)
	if plan != nil {
		for _, issue := range plan.Errors() {
			codes = append(codes, issue.Code)
		}
	}
	analysis.Codes = uniqueStrings(codes)

	analysis.Severity = a.severity(analysis.Type, plan)
	return analysis
}

func (a *Analyzer) classifyPlan(analysis *ErrorAnalysis, plan *Plan) {
	issues := plan.Errors()
	for _, t := range typePrecedence {
		for _, issue := range issues {
			if typeOf(issue.Code) == t {
				analysis.Type = t
				analysis.Code = issue.Code
				analysis.RootCause = issue.Message
				return
			}
		}
	}
	// A plan that cannot proceed always has at least one error.
	analysis.Type = ErrorTypeSystem
	analysis.Code = apperror.CodeInternal
	analysis.RootCause = "plan cannot proceed"
}

func (a *Analyzer) classifyError(analysis *ErrorAnalysis, err error) {
	analysis.RootCause = err.Error()
	analysis.CanRetry = IsTransient(err)

	if appErr, ok := apperror.AsAppError(err); ok {
		analysis.Code = appErr.Code
		analysis.RootCause = appErr.Message
		if t, known := codeTypes[appErr.Code]; known {
			analysis.Type = t
			return
		}
		analysis.Type = ErrorTypeSystem
		return
	}

	analysis.Type = ErrorTypeSystem
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		analysis.Code = apperror.CodeTimeout
	case sqlState(err) != "":
		analysis.Code = apperror.CodeDatabase
	default:
		analysis.Code = apperror.CodeInternal
	}
}

func (a *Analyzer) severity(t ErrorType, plan *Plan) Severity {
	sev := baseSeverity[t]
	if sev == "" {
		sev = SeverityHigh
	}
	if plan == nil {
		return sev
	}
	if plan.TotalOperations > a.operationThreshold {
		sev = sev.escalate()
	}
	if len(plan.AffectedItems) > a.itemThreshold {
		sev = sev.escalate()
	}
	for _, r := range plan.Results {
		if r.StockLevel == LevelCritical || r.StockLevel == LevelNegative {
			sev = sev.escalate()
			break
		}
	}
	return sev
}

// Resolution returns remediation steps for the analysis, primary code first.
func (a *Analyzer) Resolution(analysis *ErrorAnalysis) []RemediationStep {
	if analysis == nil {
		return nil
	}
	codes := analysis.Codes
	if len(codes) == 0 && analysis.Code != "" {
		codes = []string{analysis.Code}
	}

	var steps []RemediationStep
	for _, code := range codes {
		for _, action := range remediations[code] {
			steps = append(steps, RemediationStep{Code: code, Action: action})
		}
	}
	if len(steps) == 0 {
		steps = append(steps, RemediationStep{Code: analysis.Code, Action: "Review the reported errors and resubmit the batch"})
	}
	return steps
}

func typeOf(code string) ErrorType {
	if t, ok := codeTypes[code]; ok {
		return t
	}
	return ErrorTypeSystem
}

// transientStates are SQLSTATEs worth retrying: serialization failure, deadlock,
// lock not available and statement timeout. Class 08 (connection) is matched by prefix.
var transientStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
	"57014": true,
}

// IsTransient reports whether err is a transient system failure the caller may retry with the same batch.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apperror.IsConcurrentModification(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if state := sqlState(err); state != "" {
		return transientStates[state] || strings.HasPrefix(state, "08")
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return false
}

// sqlState extracts a SQLSTATE from drivers that expose one (pgconn.PgError does).
func sqlState(err error) string {
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState()
	}
	return ""
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
