package dispatch

import "github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"

// Outcome is the tagged result of the decision logic for one invocation.
// Exactly one variant is produced: a single targeted verdict, a full
// sweep verdict set, or no verdict at all. The assembly step switches on
// the concrete type; there is no ambiguous "string or list or nothing"
// shape at this boundary.
type Outcome interface {
	isOutcome()
}

// Single is the outcome of a targeted change evaluation: exactly one
// verdict, reported without reconciliation.
type Single struct {
	Evaluation models.Evaluation
}

// Many is the outcome of a sweep: the full verdict set, to be reconciled
// against previously reported verdicts before submission.
type Many struct {
	Evaluations []models.Evaluation
}

// None is the outcome of a sweep that found nothing to evaluate. The
// assembly step substitutes the account-level placeholder so the rule
// still reports that the evaluation took place.
type None struct{}

func (Single) isOutcome() {}
func (Many) isOutcome()   {}
func (None) isOutcome()   {}
