package course

import "math/big"

// Status 表示某个账户视角下课程的领取状态。
type Status string

const (
	StatusAvailable Status = "available"
	StatusClaimable Status = "claimable"
	StatusCompleted Status = "completed"
)

// DeriveStatus 根据两个链上布尔值推导课程状态。合约理论上保证
// hasClaimed 蕴含 hasCompleted，但这里不依赖该不变量：未完成一律
// 视为 available，无论 hasClaimed 是什么值。
func DeriveStatus(hasCompleted, hasClaimed bool) Status {
	switch {
	case hasCompleted && hasClaimed:
		return StatusCompleted
	case hasCompleted && !hasClaimed:
		return StatusClaimable
	default:
		return StatusAvailable
	}
}

// Course 是静态目录中的一条课程元数据，与链上状态无关。
type Course struct {
	ID            uint64   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Instructor    string   `json:"instructor"`
	Duration      string   `json:"duration"`
	Difficulty    string   `json:"difficulty"`
	Category      string   `json:"category"`
	Enrolled      int      `json:"enrolled"`
	MaxEnrollment int      `json:"max_enrollment"`
	Rating        float64  `json:"rating"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Image         string   `json:"image"`
}

// OnChainState 是 tracker 合约中一门课程的登记状态。
type OnChainState struct {
	IsCreated    bool
	RewardAmount *big.Int
}

// UserState 是某账户对某课程的完成与领取记录。
type UserState struct {
	HasCompleted bool
	HasClaimed   bool
}

// CombinedCourse 是静态目录与链上状态合并之后的视图。每次对账都会
// 整体重建，调用方拿到的始终是一致的快照，不存在原地修改。
type CombinedCourse struct {
	Course
	Reward       float64 `json:"reward"`
	IsCreated    bool    `json:"is_created"`
	HasCompleted bool    `json:"has_completed"`
	HasClaimed   bool    `json:"has_claimed"`
	Status       Status  `json:"status"`
}

// DiscoveredCourse 是链上枚举发现的课程，目录里不一定有对应条目。
type DiscoveredCourse struct {
	ID           uint64  `json:"id"`
	Title        string  `json:"title"`
	Reward       float64 `json:"reward"`
	HasCompleted bool    `json:"has_completed"`
	HasClaimed   bool    `json:"has_claimed"`
	Status       Status  `json:"status"`
}
