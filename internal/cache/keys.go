package cache

import "fmt"

// Canonical cache keys. Writers invalidate by the same builders the readers
// use so the two sides can never drift apart.

// TaskKey is the cache key for a single task.
func TaskKey(taskID string) string {
	return fmt.Sprintf("cache:task:%s", taskID)
}

// TasksSummaryKey is the cache key for a task-list summary. An empty filter
// addresses the unfiltered summary.
func TasksSummaryKey(statusFilter string, limit int) string {
	if statusFilter == "" {
		statusFilter = "all"
	}
	return fmt.Sprintf("cache:tasks_summary:%s:%d", statusFilter, limit)
}

// TasksSummaryPattern matches every cached task-list summary.
func TasksSummaryPattern() string {
	return "cache:tasks_summary:*"
}

// ClientStatisticsKey is the cache key for per-worker statistics.
func ClientStatisticsKey(clientID string) string {
	return fmt.Sprintf("cache:client_stats:%s", clientID)
}

// DocumentKey is the cache key for a registered document by system ID.
func DocumentKey(systemID string) string {
	return fmt.Sprintf("cache:document:%s", systemID)
}
