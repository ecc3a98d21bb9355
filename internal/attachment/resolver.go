// Package attachment computes the effective attached-policy set of an
// IAM principal. Roles carry exactly their direct attachments; users
// additionally inherit the policies of each group they belong to,
// resolved on demand through the IAM directory.
package attachment

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
)

// ErrUnsupportedResourceType marks a principal kind the resolver has no
// contract for. It is a programming error fatal to the invocation, never
// a compliance verdict.
var ErrUnsupportedResourceType = errors.New("unsupported resource type")

// GroupPolicyAPI is the narrow IAM interface used for group policy
// resolution. It embeds the SDK paginator client so group attachments can
// be streamed page by page.
type GroupPolicyAPI interface {
	iamsvc.ListAttachedGroupPoliciesAPIClient
}

// Resolution is the outcome of resolving a principal's effective policy
// set against a requirement.
type Resolution struct {
	// Satisfied reports whether every required policy ARN appears in the
	// effective attached set.
	Satisfied bool

	// Attached is the accumulated policy set at the point resolution
	// stopped. When Satisfied is true this may be a prefix of the full
	// effective set: traversal stops as soon as the requirement is met.
	Attached []string

	// ViaGroups is true when satisfaction required group-derived policies,
	// i.e. the user's direct attachments alone were insufficient.
	ViaGroups bool
}

// Resolver computes effective policy attachments.
type Resolver struct {
	client GroupPolicyAPI
}

// NewResolver returns a Resolver backed by the given IAM client.
func NewResolver(client GroupPolicyAPI) *Resolver {
	return &Resolver{client: client}
}

// Resolve checks whether the principal's effective attached policies
// satisfy the required set.
//
// For users, group lookups are strictly lazy: no group is fetched when
// the direct attachments already satisfy the requirement, and traversal
// stops mid-stream the moment an appended group policy completes the set.
// The number of external calls is therefore an observable part of the
// contract, not an implementation detail.
func (r *Resolver) Resolve(ctx context.Context, p *models.Principal, required []string) (*Resolution, error) {
	switch p.Kind {
	case models.KindRole:
		attached := p.AttachedPolicyARNs
		return &Resolution{Satisfied: containsAll(attached, required), Attached: attached}, nil
	case models.KindUser:
		return r.resolveUser(ctx, p, required)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResourceType, p.Kind)
	}
}

// resolveUser accumulates the user's direct attachments and then, only as
// needed, each group's attachments in membership order.
func (r *Resolver) resolveUser(ctx context.Context, p *models.Principal, required []string) (*Resolution, error) {
	attached := append([]string(nil), p.AttachedPolicyARNs...)
	if containsAll(attached, required) {
		return &Resolution{Satisfied: true, Attached: attached}, nil
	}

	for _, group := range p.Groups {
		paginator := iamsvc.NewListAttachedGroupPoliciesPaginator(r.client, &iamsvc.ListAttachedGroupPoliciesInput{
			GroupName: aws.String(group),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("list attached policies for group %q: %w", group, err)
			}
			for _, policy := range page.AttachedPolicies {
				attached = append(attached, aws.ToString(policy.PolicyArn))
				if containsAll(attached, required) {
					return &Resolution{Satisfied: true, Attached: attached, ViaGroups: true}, nil
				}
			}
		}
	}

	return &Resolution{Satisfied: false, Attached: attached}, nil
}

// containsAll reports whether every wanted ARN appears in have, by exact
// string equality. Order-independent set-membership semantics.
func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, arn := range have {
		set[arn] = struct{}{}
	}
	for _, arn := range want {
		if _, ok := set[arn]; !ok {
			return false
		}
	}
	return true
}
