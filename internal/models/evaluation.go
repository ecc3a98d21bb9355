package models

// ComplianceType is the verdict state reported to AWS Config.
type ComplianceType string

const (
	Compliant     ComplianceType = "COMPLIANT"
	NonCompliant  ComplianceType = "NON_COMPLIANT"
	NotApplicable ComplianceType = "NOT_APPLICABLE"
)

// AccountResourceType is the synthetic resource type used for the
// account-level placeholder verdict emitted when a sweep finds no
// principals to evaluate.
const AccountResourceType = "AWS::::Account"

// Evaluation is a single compliance verdict in the shape accepted by the
// AWS Config PutEvaluations API. One evaluation exists per evaluated
// principal per invocation.
type Evaluation struct {
	ComplianceResourceType string         `json:"ComplianceResourceType"`
	ComplianceResourceID   string         `json:"ComplianceResourceId"`
	ComplianceType         ComplianceType `json:"ComplianceType"`
	Annotation             string         `json:"Annotation,omitempty"`
	OrderingTimestamp      string         `json:"OrderingTimestamp"`
}

// Complete reports whether every field required by PutEvaluations is set.
// Evaluations failing this check are dropped before submission rather than
// rejected by the service.
func (e Evaluation) Complete() bool {
	return e.ComplianceResourceType != "" &&
		e.ComplianceResourceID != "" &&
		e.ComplianceType != "" &&
		e.OrderingTimestamp != ""
}

// NewEvaluation builds a verdict for an explicit resource reference.
// Suited to sweep-style results and synthetic retractions where no
// configuration item is at hand.
func NewEvaluation(resourceType, resourceID string, compliance ComplianceType, timestamp, annotation string) Evaluation {
	return Evaluation{
		ComplianceResourceType: resourceType,
		ComplianceResourceID:   resourceID,
		ComplianceType:         compliance,
		Annotation:             annotation,
		OrderingTimestamp:      timestamp,
	}
}

// NewEvaluationFor builds a verdict for a normalized principal, stamping
// it with the principal's capture time as the ordering timestamp.
func NewEvaluationFor(p *Principal, compliance ComplianceType, annotation string) Evaluation {
	return Evaluation{
		ComplianceResourceType: string(p.Kind),
		ComplianceResourceID:   p.ResourceID,
		ComplianceType:         compliance,
		Annotation:             annotation,
		OrderingTimestamp:      p.CaptureTime,
	}
}
