package contracts

import "context"

// ContractRecord is the persisted view of a mentioned contract address.
// It is produced by the message ingestion pipeline and consumed here to
// seed ranking baselines and feed subscriptions.
type ContractRecord struct {
	Address       string      `json:"address"`
	Type          AddressType `json:"type"`
	Chain         string      `json:"chain"`
	DetectedChain string      `json:"detectedChain"`

	// Attribution: the group the mention came from and the user who
	// first posted it.
	GroupID   string `json:"fromId"`
	GroupName string `json:"groupName"`
	UserID    string `json:"finalFromId"`
	UserNick  string `json:"userNick"`

	TokenSymbol string  `json:"tokenSymbol"`
	TokenPrice  float64 `json:"tokenPrice"`
	MarketCap   float64 `json:"marketCap"`
	CallTimeMs  int64   `json:"timestamp"`
}

// ContractStore is the CRUD record store for raw contract records.
// Implemented by the ingestion service; this subsystem only reads.
type ContractStore interface {
	GetContractByAddress(ctx context.Context, address string, typ AddressType) (*ContractRecord, error)
	AddContract(ctx context.Context, record *ContractRecord) error
}

// MentionSink receives contract mention events from message ingestion.
// The feed manager implements it to drive subscriptions.
type MentionSink interface {
	OnNewContract(address, chain string, typ AddressType)
	OnContractRecalled(address, chain string, typ AddressType)
}
