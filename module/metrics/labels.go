package metrics

const (
	LabelResource = "resource"
	LabelKind     = "kind"
	LabelOutcome  = "outcome"
)

const (
	ResourceUndefined   = "undefined"
	ResourceBlock       = "block"
	ResourceBlockLeaves = "block_leaves"
	ResourceTransaction = "transaction"
	ResourceAnchor      = "anchor_record"
)

// Outcomes of an anchor submission
const (
	OutcomeSubmitted       = "submitted"
	OutcomeAlreadyAnchored = "already_anchored"
	OutcomeExhausted       = "exhausted"
	OutcomeFailed          = "failed"
)
