// Package reconcile merges freshly computed verdicts with the verdicts
// previously reported for the same rule, retracting any principal that
// was reported before but is absent from the current evaluation. Without
// retraction, a deleted or out-of-scope principal would keep its stale
// verdict forever.
package reconcile

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
)

// priorPageLimit is the page size for the prior-results lookup.
const priorPageLimit = 100

// PriorResult is one previously reported verdict, reduced to the fields
// reconciliation needs.
type PriorResult struct {
	ResourceType string
	ResourceID   string
}

// ComplianceDetailsAPI is the narrow AWS Config interface for the
// prior-results lookup. It embeds the SDK paginator client.
type ComplianceDetailsAPI interface {
	configsvc.GetComplianceDetailsByConfigRuleAPIClient
}

// FetchPrior returns every COMPLIANT and NON_COMPLIANT verdict currently
// on record for the named rule, following pagination to exhaustion.
// NOT_APPLICABLE results are excluded: they are already retractions and
// need no further cleanup.
func FetchPrior(ctx context.Context, client ComplianceDetailsAPI, ruleName string) ([]PriorResult, error) {
	paginator := configsvc.NewGetComplianceDetailsByConfigRulePaginator(client, &configsvc.GetComplianceDetailsByConfigRuleInput{
		ConfigRuleName:  aws.String(ruleName),
		ComplianceTypes: []cfgtypes.ComplianceType{cfgtypes.ComplianceTypeCompliant, cfgtypes.ComplianceTypeNonCompliant},
		Limit:           priorPageLimit,
	})

	var prior []PriorResult
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("get compliance details for rule %q: %w", ruleName, err)
		}
		for _, result := range page.EvaluationResults {
			id := result.EvaluationResultIdentifier
			if id == nil || id.EvaluationResultQualifier == nil {
				continue
			}
			prior = append(prior, PriorResult{
				ResourceType: aws.ToString(id.EvaluationResultQualifier.ResourceType),
				ResourceID:   aws.ToString(id.EvaluationResultQualifier.ResourceId),
			})
		}
	}
	return prior, nil
}

// Reconcile returns the verdict sequence to report: a NOT_APPLICABLE
// retraction for every prior resource absent from current, followed by
// the current verdicts unchanged. Presence in the current set always
// wins; a current verdict is never replaced by a retraction. Retractions
// are stamped with the invocation timestamp and keep the prior result's
// resource type so AWS Config matches them to the right record.
func Reconcile(current []models.Evaluation, prior []PriorResult, timestamp string) []models.Evaluation {
	reported := make(map[string]struct{}, len(current))
	for _, ev := range current {
		reported[ev.ComplianceResourceID] = struct{}{}
	}

	var merged []models.Evaluation
	for _, old := range prior {
		if _, ok := reported[old.ResourceID]; ok {
			continue
		}
		resourceType := old.ResourceType
		if resourceType == "" {
			resourceType = string(models.KindRole)
		}
		merged = append(merged, models.NewEvaluation(resourceType, old.ResourceID, models.NotApplicable, timestamp, ""))
	}
	return append(merged, current...)
}
