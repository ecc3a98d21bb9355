package models

import "strings"

// PrincipalKind is the AWS Config resource type tag of an evaluated IAM
// principal. Exactly two kinds are supported; any other resource type
// reaching the evaluator is a contract violation.
type PrincipalKind string

const (
	KindUser PrincipalKind = "AWS::IAM::User"
	KindRole PrincipalKind = "AWS::IAM::Role"
)

// Valid reports whether k is one of the two supported principal kinds.
func (k PrincipalKind) Valid() bool {
	return k == KindUser || k == KindRole
}

// PrincipalStatus is the configuration item lifecycle status as reported
// by AWS Config.
type PrincipalStatus string

const (
	StatusOK                 PrincipalStatus = "OK"
	StatusDiscovered         PrincipalStatus = "ResourceDiscovered"
	StatusDeleted            PrincipalStatus = "ResourceDeleted"
	StatusDeletedNotRecorded PrincipalStatus = "ResourceDeletedNotRecorded"
)

// Deleted reports whether the status marks a principal that no longer
// exists. Deleted principals are reported NOT_APPLICABLE without evaluation.
func (s PrincipalStatus) Deleted() bool {
	return s == StatusDeleted || s == StatusDeletedNotRecorded
}

// Principal is the normalized, in-memory snapshot of one IAM user or role
// as captured by AWS Config. Snapshots are ephemeral: fetched fresh per
// invocation and never cached.
type Principal struct {
	// Kind is the resource type tag (AWS::IAM::User or AWS::IAM::Role).
	Kind PrincipalKind

	// Name is the IAM entity name (resourceName).
	Name string

	// ResourceID is the stable AWS Config resource identifier.
	ResourceID string

	// AccountID is the owning AWS account.
	AccountID string

	// ARN is the full Amazon resource name of the principal.
	ARN string

	// CaptureTime is the configuration item capture time in canonical
	// RFC 3339 text. It is used as the verdict ordering timestamp.
	CaptureTime string

	// Status is the configuration item lifecycle status.
	Status PrincipalStatus

	// ConfigHash and Version carry the configuration state MD5 hash and
	// configuration item version from the source record.
	ConfigHash string
	Version    string

	// AttachedPolicyARNs are the managed policies attached directly to the
	// principal, in the order reported by the source record.
	AttachedPolicyARNs []string

	// Groups lists the IAM group names the principal belongs to, in the
	// order reported. Populated for users only; always nil for roles.
	Groups []string
}

// ServiceLinked reports whether the principal is an AWS service-linked
// role, detected by the reserved "aws-service-role" path segment directly
// after the ARN's first slash. Service-linked roles are exempt from policy
// requirements because their policies are managed by AWS.
func (p *Principal) ServiceLinked() bool {
	parts := strings.Split(p.ARN, "/")
	return len(parts) > 1 && parts[1] == "aws-service-role"
}
