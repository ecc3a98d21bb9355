package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/attachment"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/ruleparams"
)

// fakeResolver returns a canned resolution and counts invocations.
type fakeResolver struct {
	resolution *attachment.Resolution
	err        error
	calls      int
}

func (f *fakeResolver) Resolve(_ context.Context, _ *models.Principal, _ []string) (*attachment.Resolution, error) {
	f.calls++
	return f.resolution, f.err
}

func params(arns []string, exceptions ruleparams.ExceptionList) *ruleparams.RuleParameters {
	return &ruleparams.RuleParameters{PolicyARNs: arns, Exceptions: exceptions}
}

func testUser(name string) *models.Principal {
	return &models.Principal{
		Kind:        models.KindUser,
		Name:        name,
		ResourceID:  "AIDA" + name,
		ARN:         "arn:aws:iam::123456789012:user/" + name,
		CaptureTime: "2024-03-01T10:00:00Z",
		Status:      models.StatusOK,
	}
}

func TestEvaluate_ExemptedUserSkipsResolution(t *testing.T) {
	resolver := &fakeResolver{}
	ev := New(resolver)

	verdict, err := ev.Evaluate(context.Background(), testUser("alice"),
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{Users: []string{"alice"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.ComplianceType != models.Compliant {
		t.Errorf("ComplianceType = %q; want COMPLIANT", verdict.ComplianceType)
	}
	if verdict.Annotation != "Ignored IAM entity" {
		t.Errorf("Annotation = %q; want the exemption annotation", verdict.Annotation)
	}
	if resolver.calls != 0 {
		t.Errorf("exempted principals must not be resolved; got %d calls", resolver.calls)
	}
}

// Exception names match their own kind only: a role name in the user
// exception list does not exempt the role.
func TestEvaluate_ExceptionKindMismatch(t *testing.T) {
	resolver := &fakeResolver{resolution: &attachment.Resolution{Satisfied: false}}
	ev := New(resolver)

	r := &models.Principal{
		Kind:        models.KindRole,
		Name:        "alice",
		ResourceID:  "AROAalice",
		ARN:         "arn:aws:iam::123456789012:role/alice",
		CaptureTime: "2024-03-01T10:00:00Z",
	}
	verdict, err := ev.Evaluate(context.Background(), r,
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{Users: []string{"alice"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.ComplianceType != models.NonCompliant {
		t.Errorf("ComplianceType = %q; want NON_COMPLIANT for kind-mismatched exception", verdict.ComplianceType)
	}
}

func TestEvaluate_ServiceLinkedRoleExempt(t *testing.T) {
	resolver := &fakeResolver{}
	ev := New(resolver)

	slr := &models.Principal{
		Kind:        models.KindRole,
		Name:        "AWSServiceRoleForSSO",
		ResourceID:  "AROASLR",
		ARN:         "arn:aws:iam::123456789012:role/aws-service-role/sso.amazonaws.com/AWSServiceRoleForSSO",
		CaptureTime: "2024-03-01T10:00:00Z",
	}
	verdict, err := ev.Evaluate(context.Background(), slr,
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.ComplianceType != models.Compliant {
		t.Errorf("ComplianceType = %q; want COMPLIANT for service-linked role", verdict.ComplianceType)
	}
	if resolver.calls != 0 {
		t.Error("service-linked roles must not be resolved")
	}
}

func TestEvaluate_SatisfiedDirect(t *testing.T) {
	resolver := &fakeResolver{resolution: &attachment.Resolution{Satisfied: true}}
	verdict, err := New(resolver).Evaluate(context.Background(), testUser("bob"),
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.ComplianceType != models.Compliant {
		t.Errorf("ComplianceType = %q; want COMPLIANT", verdict.ComplianceType)
	}
	if verdict.Annotation != "All expected policies attached" {
		t.Errorf("Annotation = %q; want the direct-attachment annotation", verdict.Annotation)
	}
}

// Group-derived satisfaction is distinguishable in the annotation for
// auditability.
func TestEvaluate_SatisfiedViaGroups(t *testing.T) {
	resolver := &fakeResolver{resolution: &attachment.Resolution{Satisfied: true, ViaGroups: true}}
	verdict, err := New(resolver).Evaluate(context.Background(), testUser("bob"),
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Annotation == "All expected policies attached" {
		t.Error("group-derived satisfaction must carry a distinct annotation")
	}
	if verdict.ComplianceType != models.Compliant {
		t.Errorf("ComplianceType = %q; want COMPLIANT", verdict.ComplianceType)
	}
}

func TestEvaluate_Unsatisfied(t *testing.T) {
	resolver := &fakeResolver{resolution: &attachment.Resolution{Satisfied: false}}
	verdict, err := New(resolver).Evaluate(context.Background(), testUser("bob"),
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.ComplianceType != models.NonCompliant {
		t.Errorf("ComplianceType = %q; want NON_COMPLIANT", verdict.ComplianceType)
	}
	if verdict.Annotation == "" {
		t.Error("NON_COMPLIANT verdicts must carry a reason")
	}
}

func TestEvaluate_VerdictCarriesPrincipalReference(t *testing.T) {
	resolver := &fakeResolver{resolution: &attachment.Resolution{Satisfied: true}}
	p := testUser("bob")
	verdict, err := New(resolver).Evaluate(context.Background(), p,
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.ComplianceResourceID != p.ResourceID {
		t.Errorf("ComplianceResourceID = %q; want %q", verdict.ComplianceResourceID, p.ResourceID)
	}
	if verdict.ComplianceResourceType != string(models.KindUser) {
		t.Errorf("ComplianceResourceType = %q; want %q", verdict.ComplianceResourceType, models.KindUser)
	}
	if verdict.OrderingTimestamp != p.CaptureTime {
		t.Errorf("OrderingTimestamp = %q; want the capture time %q", verdict.OrderingTimestamp, p.CaptureTime)
	}
}

func TestEvaluate_UnsupportedKind(t *testing.T) {
	p := &models.Principal{Kind: "AWS::IAM::Group", Name: "devs"}
	_, err := New(&fakeResolver{}).Evaluate(context.Background(), p,
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{}))
	if !errors.Is(err, attachment.ErrUnsupportedResourceType) {
		t.Errorf("got %v; want ErrUnsupportedResourceType", err)
	}
}

func TestEvaluate_ResolverErrorPropagates(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("boom")}
	_, err := New(resolver).Evaluate(context.Background(), testUser("bob"),
		params([]string{"arn:aws:iam::aws:policy/P"}, ruleparams.ExceptionList{}))
	if err == nil {
		t.Fatal("want resolver error to propagate")
	}
}
