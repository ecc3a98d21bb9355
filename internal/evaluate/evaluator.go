// Package evaluate applies the compliance decision logic for a single
// principal: exemption handling first, then effective policy attachment
// via the attachment resolver.
package evaluate

import (
	"context"
	"fmt"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/attachment"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/ruleparams"
)

// Annotations attached to verdicts. AWS Config surfaces these verbatim
// to the account operator, so they name the outcome, not the mechanism.
const (
	annotationExempt    = "Ignored IAM entity"
	annotationAttached  = "All expected policies attached"
	annotationViaGroups = "All expected policies attached directly or through group membership"
	annotationMissing   = "IAM entity missing required policies"
)

// Resolver is the attachment resolution dependency. Satisfied by
// *attachment.Resolver; tests substitute a fake to pin call counts.
type Resolver interface {
	Resolve(ctx context.Context, p *models.Principal, required []string) (*attachment.Resolution, error)
}

// Evaluator produces one compliance verdict per principal.
type Evaluator struct {
	resolver Resolver
}

// New returns an Evaluator using the given attachment resolver.
func New(resolver Resolver) *Evaluator {
	return &Evaluator{resolver: resolver}
}

// Evaluate returns the verdict for one principal. Decision order, first
// match wins:
//
//  1. Service-linked roles and principals named in the kind-matching
//     exception set are COMPLIANT without attachment resolution.
//     Exception matching is exact and case sensitive.
//     TODO: confirm with the rule owners whether exception names should
//     match case-insensitively; AWS user names are case-preserving.
//  2. Effective attachments satisfy the requirement: COMPLIANT, with the
//     annotation distinguishing group-derived satisfaction for users.
//  3. Otherwise NON_COMPLIANT.
//
// Deleted principals must never reach this method; the dispatch layer
// reports them NOT_APPLICABLE directly.
func (e *Evaluator) Evaluate(ctx context.Context, p *models.Principal, params *ruleparams.RuleParameters) (models.Evaluation, error) {
	if !p.Kind.Valid() {
		return models.Evaluation{}, fmt.Errorf("%w: %q", attachment.ErrUnsupportedResourceType, p.Kind)
	}

	if p.ServiceLinked() || params.Exceptions.Contains(p.Kind, p.Name) {
		return models.NewEvaluationFor(p, models.Compliant, annotationExempt), nil
	}

	res, err := e.resolver.Resolve(ctx, p, params.PolicyARNs)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("resolve attachments for %s %q: %w", p.Kind, p.Name, err)
	}
	if res.Satisfied {
		annotation := annotationAttached
		if res.ViaGroups {
			annotation = annotationViaGroups
		}
		return models.NewEvaluationFor(p, models.Compliant, annotation), nil
	}
	return models.NewEvaluationFor(p, models.NonCompliant, annotationMissing), nil
}
