package metrics

// Prometheus metric namespaces
const (
	namespaceLedger = "ledger"
	namespaceAnchor = "anchor"
	namespaceCache  = "cache"
)

// Ledger subsystems
const (
	subsystemState = "state"
	subsystemChain = "chain"
)

// Anchor subsystems
const (
	subsystemSubmitter = "submitter"
)
