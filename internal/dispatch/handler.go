// Package dispatch routes an incoming AWS Config notification through
// parameter validation, resource normalization, compliance evaluation,
// and reconciliation, then submits the final verdict set. It is the
// outermost boundary of the engine: no panic or bare error escapes it.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/attachment"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/configitem"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/directory"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/evaluate"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/event"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/reconcile"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/response"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/ruleparams"
)

// testModeToken is the reserved result token that marks a test invocation:
// verdicts are computed normally but submission runs with TestMode set.
const testModeToken = "TESTMODE"

// putEvaluationsBatchSize is the PutEvaluations per-call limit.
const putEvaluationsBatchSize = 100

// HistoryAPI is the narrow AWS Config interface for the oversized-change
// history lookup.
type HistoryAPI interface {
	GetResourceConfigHistory(ctx context.Context, params *configsvc.GetResourceConfigHistoryInput, optFns ...func(*configsvc.Options)) (*configsvc.GetResourceConfigHistoryOutput, error)
}

// SubmitAPI is the narrow AWS Config interface for verdict submission.
type SubmitAPI interface {
	PutEvaluations(ctx context.Context, params *configsvc.PutEvaluationsInput, optFns ...func(*configsvc.Options)) (*configsvc.PutEvaluationsOutput, error)
}

// Collaborators bundles every external dependency of one invocation.
// All fields are interfaces so tests can wire fakes; NewCollaborators
// builds the production set from a ClientSet.
type Collaborators struct {
	Directory     directory.API
	GroupPolicies attachment.GroupPolicyAPI
	History       HistoryAPI
	Compliance    reconcile.ComplianceDetailsAPI
	Submitter     SubmitAPI
}

// NewCollaborators wires the production AWS SDK clients.
func NewCollaborators(clients *common.ClientSet) *Collaborators {
	return &Collaborators{
		Directory:     clients.IAM,
		GroupPolicies: clients.IAM,
		History:       clients.ConfigService,
		Compliance:    clients.ConfigService,
		Submitter:     clients.ConfigService,
	}
}

// Handler drives one invocation end to end.
type Handler struct {
	collab *Collaborators
}

// NewHandler returns a Handler using the given collaborators.
func NewHandler(collab *Collaborators) *Handler {
	return &Handler{collab: collab}
}

// Run executes one invocation and converts any failure into the
// structured error payload. It is the outermost boundary: a panic in the
// pipeline is recovered and reported as an internal error rather than
// crashing the invocation.
func (h *Handler) Run(ctx context.Context, ev *event.Event) (evals []models.Evaluation, errResp *response.ErrorResponse) {
	defer func() {
		if r := recover(); r != nil {
			evals = nil
			errResp = response.NewInternalError("Unexpected panic during evaluation", fmt.Sprint(r))
		}
	}()

	evals, err := h.Handle(ctx, ev)
	if err != nil {
		return nil, response.FromError(err)
	}
	return evals, nil
}

// Handle validates parameters, classifies the notification, evaluates,
// reconciles, and submits. It returns the submitted verdict set.
//
// Parameter validation runs first and on failure nothing else happens:
// no collaborator is contacted for an invocation that was misconfigured.
func (h *Handler) Handle(ctx context.Context, ev *event.Event) ([]models.Evaluation, error) {
	raw, err := ev.Parameters()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ruleparams.ErrInvalidConfiguration, err)
	}
	params, err := ruleparams.Parse(raw)
	if err != nil {
		return nil, err
	}

	inv, err := ev.Invoking()
	if err != nil {
		return nil, err
	}
	notification, err := inv.Classify()
	if err != nil {
		return nil, err
	}

	evaluator := evaluate.New(attachment.NewResolver(h.collab.GroupPolicies))

	outcome, err := h.decide(ctx, ev, inv, notification, params, evaluator)
	if err != nil {
		return nil, err
	}

	evaluations, err := h.assemble(ctx, ev, inv, outcome)
	if err != nil {
		return nil, err
	}

	if err := h.submit(ctx, ev, evaluations); err != nil {
		return nil, err
	}
	return evaluations, nil
}

// decide runs the evaluation path selected by the notification variant
// and produces the tagged outcome.
func (h *Handler) decide(
	ctx context.Context,
	ev *event.Event,
	inv *event.InvokingEvent,
	notification event.Notification,
	params *ruleparams.RuleParameters,
	evaluator *evaluate.Evaluator,
) (Outcome, error) {
	switch n := notification.(type) {
	case event.TargetedChange:
		principal, err := configitem.FromRaw(n.Item)
		if err != nil {
			return nil, err
		}
		return h.evaluateTarget(ctx, ev, principal, params, evaluator)

	case event.OversizedChange:
		principal, err := h.fetchFromHistory(ctx, n.Summary)
		if err != nil {
			return nil, err
		}
		return h.evaluateTarget(ctx, ev, principal, params, evaluator)

	case event.ScheduledSweep:
		return h.evaluateSweep(ctx, ev, inv, params, evaluator)

	default:
		return nil, fmt.Errorf("unhandled notification variant %T", notification)
	}
}

// evaluateTarget produces the single verdict for a targeted change.
// A deleted principal, or one that fell out of the rule's scope, is
// retracted directly without touching the evaluator.
func (h *Handler) evaluateTarget(
	ctx context.Context,
	ev *event.Event,
	principal *models.Principal,
	params *ruleparams.RuleParameters,
	evaluator *evaluate.Evaluator,
) (Outcome, error) {
	if principal.Status.Deleted() || ev.EventLeftScope {
		return Single{Evaluation: models.NewEvaluationFor(principal, models.NotApplicable, "")}, nil
	}

	verdict, err := evaluator.Evaluate(ctx, principal, params)
	if err != nil {
		return nil, err
	}
	return Single{Evaluation: verdict}, nil
}

// evaluateSweep enumerates every user and role in the account and
// evaluates each. An account with no principals yields the None outcome.
func (h *Handler) evaluateSweep(
	ctx context.Context,
	ev *event.Event,
	inv *event.InvokingEvent,
	params *ruleparams.RuleParameters,
	evaluator *evaluate.Evaluator,
) (Outcome, error) {
	enumerator := directory.NewEnumerator(h.collab.Directory)
	principals, err := enumerator.ListPrincipals(ctx, ev.AccountID, inv.NotificationCreationTime)
	if err != nil {
		return nil, err
	}
	if len(principals) == 0 {
		return None{}, nil
	}

	evaluations := make([]models.Evaluation, 0, len(principals))
	for _, principal := range principals {
		verdict, err := evaluator.Evaluate(ctx, principal, params)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, verdict)
	}
	return Many{Evaluations: evaluations}, nil
}

// fetchFromHistory retrieves the full configuration record referenced by
// an oversized notification summary: the latest record at or before the
// summary's capture time.
func (h *Handler) fetchFromHistory(ctx context.Context, summary event.ItemSummary) (*models.Principal, error) {
	out, err := h.collab.History.GetResourceConfigHistory(ctx, &configsvc.GetResourceConfigHistoryInput{
		ResourceType: cfgtypes.ResourceType(summary.ResourceType),
		ResourceId:   aws.String(summary.ResourceID),
		LaterTime:    aws.Time(summary.CaptureTime),
		Limit:        1,
	})
	if err != nil {
		return nil, fmt.Errorf("get configuration history for %s %s: %w", summary.ResourceType, summary.ResourceID, err)
	}
	if len(out.ConfigurationItems) == 0 {
		return nil, fmt.Errorf("%w: no configuration history record for %s %s",
			configitem.ErrMalformedResource, summary.ResourceType, summary.ResourceID)
	}
	return configitem.FromAPI(out.ConfigurationItems[0])
}

// assemble turns the outcome into the final verdict sequence. Sweep-style
// outcomes (Many and None) are reconciled against the previously reported
// verdicts so stale results are retracted; a targeted Single is reported
// as-is.
func (h *Handler) assemble(ctx context.Context, ev *event.Event, inv *event.InvokingEvent, outcome Outcome) ([]models.Evaluation, error) {
	switch o := outcome.(type) {
	case Single:
		return []models.Evaluation{o.Evaluation}, nil

	case Many:
		return h.reconcileSweep(ctx, ev, o.Evaluations)

	case None:
		placeholder := models.NewEvaluation(
			models.AccountResourceType,
			ev.AccountID,
			models.NotApplicable,
			inv.NotificationCreationTime,
			"",
		)
		return h.reconcileSweep(ctx, ev, []models.Evaluation{placeholder})

	default:
		return nil, fmt.Errorf("unhandled outcome variant %T", outcome)
	}
}

// reconcileSweep fetches the prior reported set and merges in the
// retractions. Retractions share the sweep's notification timestamp.
func (h *Handler) reconcileSweep(ctx context.Context, ev *event.Event, current []models.Evaluation) ([]models.Evaluation, error) {
	prior, err := reconcile.FetchPrior(ctx, h.collab.Compliance, ev.ConfigRuleName)
	if err != nil {
		return nil, err
	}
	inv, err := ev.Invoking()
	if err != nil {
		return nil, err
	}
	return reconcile.Reconcile(current, prior, inv.NotificationCreationTime), nil
}

// submit reports the verdict sequence through PutEvaluations, batched to
// the API limit. Evaluations missing a required field are dropped rather
// than submitted, matching the service's own validation. The reserved
// TESTMODE token runs the submission in test mode.
func (h *Handler) submit(ctx context.Context, ev *event.Event, evaluations []models.Evaluation) error {
	testMode := ev.ResultToken == testModeToken

	apiEvals := make([]cfgtypes.Evaluation, 0, len(evaluations))
	for _, e := range evaluations {
		if !e.Complete() {
			continue
		}
		stamp, err := time.Parse(time.RFC3339, e.OrderingTimestamp)
		if err != nil {
			return fmt.Errorf("parse ordering timestamp %q: %w", e.OrderingTimestamp, err)
		}
		apiEval := cfgtypes.Evaluation{
			ComplianceResourceType: aws.String(e.ComplianceResourceType),
			ComplianceResourceId:   aws.String(e.ComplianceResourceID),
			ComplianceType:         cfgtypes.ComplianceType(e.ComplianceType),
			OrderingTimestamp:      aws.Time(stamp),
		}
		if e.Annotation != "" {
			apiEval.Annotation = aws.String(e.Annotation)
		}
		apiEvals = append(apiEvals, apiEval)
	}

	for start := 0; start < len(apiEvals); start += putEvaluationsBatchSize {
		end := min(start+putEvaluationsBatchSize, len(apiEvals))
		_, err := h.collab.Submitter.PutEvaluations(ctx, &configsvc.PutEvaluationsInput{
			Evaluations: apiEvals[start:end],
			ResultToken: aws.String(ev.ResultToken),
			TestMode:    testMode,
		})
		if err != nil {
			return fmt.Errorf("put evaluations: %w", err)
		}
	}
	return nil
}
