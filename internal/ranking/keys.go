package ranking

import "fmt"

// Redis key layout. Contract stats and their secondary index sets are
// keyed by normalized address; the index sets exist so win flips and
// price fan-out never need a keyspace scan.
const (
	keyGroupRanking    = "ranking:groups" // zset, score = win rate
	keyCallRanking     = "ranking:calls"  // zset, score = max multiplier
	keyActiveContracts = "ranking:active" // zset, score = last call unix ms

	resetScanPattern = "ranking:*"
)

func keyContractStats(address string) string {
	return "ranking:contract:" + address
}

// keyContractGroups indexes the groups that mentioned an address
func keyContractGroups(address string) string {
	return "ranking:contract:" + address + ":groups"
}

// keyContractCalls indexes the call ids recorded for an address
func keyContractCalls(address string) string {
	return "ranking:contract:" + address + ":calls"
}

func keyGroupStats(groupID string) string {
	return "ranking:group:" + groupID
}

// keyGroupContracts holds the set of unique addresses a group called
func keyGroupContracts(groupID string) string {
	return "ranking:group:" + groupID + ":contracts"
}

func keyCallStats(callID string) string {
	return "ranking:call:" + callID
}

// callID identifies one user's call on one contract
func callID(userID, address string) string {
	return fmt.Sprintf("%s:%s", userID, address)
}
