package txflow

// AttemptStats 聚合了交易尝试各阶段的统计信息，常用于仪表盘或健康检查。
type AttemptStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Estimating      int   `json:"estimating"`
	Submitted       int   `json:"submitted"`
	Confirmed       int   `json:"confirmed"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}
