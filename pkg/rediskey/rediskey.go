package rediskey

import "fmt"

// Key prefixes shared across services.
const (
	PayoutIdemPrefix     = "payout:idem"
	WorkerHistoryPrefix  = "worker:history"
	WorkerRiskPrefix     = "worker:risk"
	WorkerForecastPrefix = "worker:forecast"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildPayoutIdemKey returns "payout:idem:{key}"
func BuildPayoutIdemKey(key string) string {
	return NamespaceKey(PayoutIdemPrefix, key)
}

// BuildWorkerHistoryKey returns "worker:history:{workerID}"
func BuildWorkerHistoryKey(workerID string) string {
	return NamespaceKey(WorkerHistoryPrefix, workerID)
}
