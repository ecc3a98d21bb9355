package attachment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
)

// fakeGroupPolicyClient serves canned group policy pages and records every
// ListAttachedGroupPolicies call so tests can assert the short-circuit
// contract by call count.
type fakeGroupPolicyClient struct {
	// policies maps group name to attached policy ARNs.
	policies map[string][]string
	// pageSize splits each group's policies into pages of this size.
	// Zero means one page.
	pageSize int
	// calls records the group name of every API call, one entry per page
	// fetched.
	calls []string
	// err, when set, is returned on every call.
	err error
}

func (f *fakeGroupPolicyClient) ListAttachedGroupPolicies(
	_ context.Context,
	params *iamsvc.ListAttachedGroupPoliciesInput,
	_ ...func(*iamsvc.Options),
) (*iamsvc.ListAttachedGroupPoliciesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	group := aws.ToString(params.GroupName)
	f.calls = append(f.calls, group)

	arns := f.policies[group]
	start := 0
	if params.Marker != nil {
		fmt.Sscanf(*params.Marker, "%d", &start)
	}
	size := f.pageSize
	if size == 0 {
		size = len(arns)
	}
	end := start + size
	if end >= len(arns) {
		end = len(arns)
	}

	out := &iamsvc.ListAttachedGroupPoliciesOutput{}
	for _, arn := range arns[start:end] {
		out.AttachedPolicies = append(out.AttachedPolicies, iamtypes.AttachedPolicy{
			PolicyArn: aws.String(arn),
		})
	}
	if end < len(arns) {
		out.IsTruncated = true
		out.Marker = aws.String(fmt.Sprint(end))
	}
	return out, nil
}

func user(name string, attached []string, groups []string) *models.Principal {
	return &models.Principal{
		Kind:               models.KindUser,
		Name:               name,
		ResourceID:         "AIDA" + name,
		ARN:                "arn:aws:iam::123456789012:user/" + name,
		AttachedPolicyARNs: attached,
		Groups:             groups,
	}
}

func role(name string, attached []string) *models.Principal {
	return &models.Principal{
		Kind:               models.KindRole,
		Name:               name,
		ResourceID:         "AROA" + name,
		ARN:                "arn:aws:iam::123456789012:role/" + name,
		AttachedPolicyARNs: attached,
	}
}

const (
	p1 = "arn:aws:iam::123456789012:policy/P1"
	p2 = "arn:aws:iam::123456789012:policy/P2"
	p3 = "arn:aws:iam::123456789012:policy/P3"
)

func TestResolve_RoleExactSetAnyOrder(t *testing.T) {
	client := &fakeGroupPolicyClient{}
	res, err := NewResolver(client).Resolve(context.Background(), role("r", []string{p2, p1}), []string{p1, p2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Satisfied {
		t.Error("want satisfied for role with the exact required set in any order")
	}
	if len(client.calls) != 0 {
		t.Errorf("roles must never trigger group lookups; got %v", client.calls)
	}
}

func TestResolve_RoleStrictSubset(t *testing.T) {
	res, err := NewResolver(&fakeGroupPolicyClient{}).Resolve(context.Background(), role("r", []string{p1}), []string{p1, p2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Satisfied {
		t.Error("want unsatisfied for a strict subset")
	}
}

// A user whose direct attachments satisfy the requirement must not cause
// a single group lookup.
func TestResolve_UserDirectShortCircuit(t *testing.T) {
	client := &fakeGroupPolicyClient{policies: map[string][]string{"devs": {p2}}}
	res, err := NewResolver(client).Resolve(context.Background(),
		user("alice", []string{p1, p2}, []string{"devs"}), []string{p1, p2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Satisfied || res.ViaGroups {
		t.Errorf("want direct satisfaction; got %+v", res)
	}
	if len(client.calls) != 0 {
		t.Errorf("want 0 group lookups when direct attachments suffice; got %d", len(client.calls))
	}
}

// When the first group completes the requirement, the second group must
// not be fetched.
func TestResolve_FirstGroupSatisfiesNoSecondLookup(t *testing.T) {
	client := &fakeGroupPolicyClient{policies: map[string][]string{
		"devs": {p2},
		"ops":  {p3},
	}}
	res, err := NewResolver(client).Resolve(context.Background(),
		user("bob", []string{p1}, []string{"devs", "ops"}), []string{p1, p2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Satisfied || !res.ViaGroups {
		t.Errorf("want group-derived satisfaction; got %+v", res)
	}
	for _, call := range client.calls {
		if call == "ops" {
			t.Error("second group fetched even though the first group satisfied the requirement")
		}
	}
}

// Satisfaction is re-checked per appended policy, so traversal can stop
// mid-page without fetching the remaining pages of the same group.
func TestResolve_StopsMidGroupPagination(t *testing.T) {
	client := &fakeGroupPolicyClient{
		policies: map[string][]string{"devs": {p2, p3}},
		pageSize: 1,
	}
	res, err := NewResolver(client).Resolve(context.Background(),
		user("bob", []string{p1}, []string{"devs"}), []string{p1, p2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Satisfied {
		t.Fatalf("want satisfied; got %+v", res)
	}
	if len(client.calls) != 1 {
		t.Errorf("want 1 page fetch (p2 is on the first page); got %d", len(client.calls))
	}
}

func TestResolve_AllGroupsInsufficient(t *testing.T) {
	client := &fakeGroupPolicyClient{policies: map[string][]string{
		"devs": {p3},
		"ops":  {},
	}}
	res, err := NewResolver(client).Resolve(context.Background(),
		user("bob", []string{p1}, []string{"devs", "ops"}), []string{p1, p2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Satisfied {
		t.Error("want unsatisfied when no group completes the requirement")
	}
	// The full accumulated set is returned: direct + both groups.
	want := map[string]bool{p1: true, p3: true}
	if len(res.Attached) != len(want) {
		t.Errorf("Attached = %v; want the accumulated set %v", res.Attached, want)
	}
}

func TestResolve_GroupLookupErrorPropagates(t *testing.T) {
	client := &fakeGroupPolicyClient{err: errors.New("throttled")}
	_, err := NewResolver(client).Resolve(context.Background(),
		user("bob", []string{p1}, []string{"devs"}), []string{p1, p2})
	if err == nil {
		t.Fatal("want error when the group lookup fails")
	}
}

func TestResolve_UnsupportedKind(t *testing.T) {
	p := &models.Principal{Kind: "AWS::IAM::Group", Name: "devs"}
	_, err := NewResolver(&fakeGroupPolicyClient{}).Resolve(context.Background(), p, []string{p1})
	if !errors.Is(err, ErrUnsupportedResourceType) {
		t.Errorf("got %v; want ErrUnsupportedResourceType", err)
	}
}
