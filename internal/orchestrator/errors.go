package orchestrator

import "errors"

var (
	// ErrSessionNotFound indicates a caller-specified session id does not
	// exist for the resume. Terminal for the operation: re-resolve instead
	// of retrying identically.
	ErrSessionNotFound = errors.New("orchestrator: session not found")

	// ErrSessionCompleted indicates the targeted session is already in a
	// terminal state and cannot be resumed or mutated.
	ErrSessionCompleted = errors.New("orchestrator: session already completed")

	// ErrSessionBusy rejects a mutating operation while another one is in
	// flight for the same session. Safe to retry once the pending operation
	// settles.
	ErrSessionBusy = errors.New("orchestrator: another operation is in flight")

	// ErrStoreUnavailable covers transport failures and timeouts talking to
	// the session store, question supplier, or answer evaluator. Always
	// retryable: no partial mutation is committed before a full round-trip
	// succeeds.
	ErrStoreUnavailable = errors.New("orchestrator: backend unavailable")

	// ErrEvaluator indicates the remote answer evaluation failed. Retryable;
	// the answer under evaluation was not appended.
	ErrEvaluator = errors.New("orchestrator: answer evaluation failed")

	// ErrNoMoreQuestions is returned by a QuestionSupplier when every preset
	// question has been served. Expected, not a failure condition.
	ErrNoMoreQuestions = errors.New("orchestrator: no more preset questions")

	// ErrNoPendingDecision rejects a Decide call whose token does not match
	// the currently suspended continue-vs-discard prompt.
	ErrNoPendingDecision = errors.New("orchestrator: no matching pending decision")

	// ErrNotActive rejects SubmitAnswer/End when no session is being driven.
	ErrNotActive = errors.New("orchestrator: no active session")
)
