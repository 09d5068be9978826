package storage

// All includes all the storage modules
type All struct {
	Transactions  Transactions
	Blocks        Blocks
	AnchorRecords AnchorRecords
}
