package ranking

// ContractStats is the per-contract baseline and peak tracking.
// initialPrice is set exactly once, at the first recorded call, and
// every multiplier derives from it.
type ContractStats struct {
	Address      string  `json:"address"`
	InitialPrice float64 `json:"initialPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	MaxPrice     float64 `json:"maxPrice"`
	MaxGain      float64 `json:"maxGain"` // peak fractional gain over baseline
	IsWin        bool    `json:"isWin"`
	FirstCallMs  int64   `json:"firstCallTime"`
	LastCallMs   int64   `json:"lastCallTime"`
	CallCount    int64   `json:"callCount"`
}

// GroupStats aggregates the calls attributed to one chat group
type GroupStats struct {
	GroupID         string  `json:"groupId"`
	GroupName       string  `json:"groupName"`
	TotalCalls      int64   `json:"totalCalls"`
	UniqueContracts int64   `json:"uniqueContracts"`
	Wins            int64   `json:"wins"`
	WinRate         float64 `json:"winRate"`
}

// CallStats is one user's call on one contract
type CallStats struct {
	CallID            string  `json:"callId"`
	Address           string  `json:"address"`
	TokenSymbol       string  `json:"tokenSymbol"`
	UserID            string  `json:"userId"`
	UserNick          string  `json:"userNick"`
	GroupID           string  `json:"groupId"`
	GroupName         string  `json:"groupName"`
	CallPrice         float64 `json:"callPrice"`
	MaxMultiplier     float64 `json:"maxMultiplier"`
	CurrentMultiplier float64 `json:"currentMultiplier"`
	CallTimeMs        int64   `json:"callTime"`
}

// GroupRankingEntry is one row of the group leaderboard
type GroupRankingEntry struct {
	Rank            int     `json:"rank"`
	GroupID         string  `json:"groupId"`
	GroupName       string  `json:"groupName"`
	WinRate         float64 `json:"winRate"`
	TotalCalls      int64   `json:"totalCalls"`
	UniqueContracts int64   `json:"uniqueContracts"`
	Wins            int64   `json:"wins"`
}

// CallRankingEntry is one row of the call leaderboard
type CallRankingEntry struct {
	Rank              int     `json:"rank"`
	CallID            string  `json:"callId"`
	Address           string  `json:"address"`
	TokenSymbol       string  `json:"tokenSymbol"`
	UserID            string  `json:"userId"`
	UserNick          string  `json:"userNick"`
	GroupID           string  `json:"groupId"`
	GroupName         string  `json:"groupName"`
	MaxMultiplier     float64 `json:"maxMultiplier"`
	CurrentMultiplier float64 `json:"currentMultiplier"`
	CallTimeMs        int64   `json:"callTime"`
}
