package runner

// OutcomeKind is the explicit result of executing one block. Control flow is
// carried by values, never by panics or sentinel errors.
type OutcomeKind int

const (
	// OutcomeAdvance moves the cursor to the next block.
	OutcomeAdvance OutcomeKind = iota
	// OutcomeRetry keeps the cursor in place; the same block re-runs on the
	// learner's next input (moderation rejection, parse failure).
	OutcomeRetry
	// OutcomeSuspend hands control back until an out-of-band action (login,
	// payment, code verification) re-enters the flow.
	OutcomeSuspend
	// OutcomeBranch redirects the learner to another outline item.
	OutcomeBranch
	// OutcomeHalt stops at the current block with no pending interaction
	// (e.g. a goto with no matching rule).
	OutcomeHalt
)

// BlockOutcome is the sum type returned by every block handler.
type BlockOutcome struct {
	Kind   OutcomeKind
	Reason string
	// TargetOutlineBID is set for OutcomeBranch.
	TargetOutlineBID string
}

func advance() BlockOutcome              { return BlockOutcome{Kind: OutcomeAdvance} }
func retry(reason string) BlockOutcome   { return BlockOutcome{Kind: OutcomeRetry, Reason: reason} }
func suspend() BlockOutcome              { return BlockOutcome{Kind: OutcomeSuspend} }
func branch(target string) BlockOutcome  { return BlockOutcome{Kind: OutcomeBranch, TargetOutlineBID: target} }
func halt(reason string) BlockOutcome    { return BlockOutcome{Kind: OutcomeHalt, Reason: reason} }
