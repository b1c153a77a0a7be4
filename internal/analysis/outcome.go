package analysis

import "fmt"

// OutcomeKind tags the result of running one detected face through the
// decision stages.
type OutcomeKind int

const (
	OutcomeNoLandmarks OutcomeKind = iota
	OutcomeRecognized
	OutcomeAlreadyCredited
	OutcomeRejected
	OutcomeSessionMatch
	OutcomeEnrolled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoLandmarks:
		return "no_landmarks"
	case OutcomeRecognized:
		return "recognized"
	case OutcomeAlreadyCredited:
		return "already_credited"
	case OutcomeRejected:
		return "rejected"
	case OutcomeSessionMatch:
		return "session_match"
	case OutcomeEnrolled:
		return "enrolled"
	default:
		return "failed"
	}
}

// Outcome is what happened to one face.
type Outcome struct {
	Kind       OutcomeKind
	IdentityID int64
	Distance   float64
	// Reason explains OutcomeRejected and OutcomeFailed.
	Reason string
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeRejected, OutcomeFailed, OutcomeNoLandmarks:
		if o.Reason != "" {
			return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
		}
		return o.Kind.String()
	default:
		return fmt.Sprintf("%s: identity %d", o.Kind, o.IdentityID)
	}
}

func rejected(reason string) Outcome { return Outcome{Kind: OutcomeRejected, Reason: reason} }

func failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Reason: err.Error()} }
