package pipeline

import "errors"

// OutcomeKind classifies one stage attempt.
type OutcomeKind int

const (
	// OutcomeSuccess advances the run to the next stage.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRecoverable triggers the next fallback method, if the
	// stage's attempt budget allows one.
	OutcomeRecoverable
	// OutcomeFatal terminates the run as failed immediately.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRecoverable:
		return "recoverable_failure"
	case OutcomeFatal:
		return "fatal_failure"
	}
	return "unknown"
}

// Outcome is the result of a single stage attempt. Err is nil only for
// success.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func Success() Outcome              { return Outcome{Kind: OutcomeSuccess} }
func Recoverable(err error) Outcome { return Outcome{Kind: OutcomeRecoverable, Err: err} }
func Fatal(err error) Outcome       { return Outcome{Kind: OutcomeFatal, Err: err} }

// classify folds an error into an outcome: nil is success, sentinel
// unrecoverable errors are fatal, anything else is worth a fallback.
func classify(err error, fatalSentinels ...error) Outcome {
	if err == nil {
		return Success()
	}
	for _, s := range fatalSentinels {
		if errors.Is(err, s) {
			return Fatal(err)
		}
	}
	return Recoverable(err)
}
