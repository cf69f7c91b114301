package course

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	xerrors "Sonic-University/internal/errors"
)

// Catalog 持有静态课程目录。目录在进程启动时加载一次，之后只读，
// 因此这里不加锁。
type Catalog struct {
	courses []Course
	byID    map[uint64]Course
}

// NewCatalog 用给定课程构建目录，按 ID 升序排列。
func NewCatalog(courses []Course) *Catalog {
	sorted := make([]Course, len(courses))
	copy(sorted, courses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	byID := make(map[uint64]Course, len(sorted))
	for _, c := range sorted {
		byID[c.ID] = c
	}
	return &Catalog{courses: sorted, byID: byID}
}

// LoadCatalog 从 JSON 文件加载目录；path 为空时使用内置目录。
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(defaultCourses()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigFailure, err, "读取课程目录文件失败")
	}
	var courses []Course
	if err := json.Unmarshal(raw, &courses); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigFailure, err, "解析课程目录文件失败")
	}
	if len(courses) == 0 {
		return nil, xerrors.New(xerrors.CodeConfigFailure, "课程目录为空")
	}
	seen := make(map[uint64]struct{}, len(courses))
	for _, c := range courses {
		if c.ID == 0 {
			return nil, xerrors.New(xerrors.CodeConfigFailure, "课程 ID 不能为 0")
		}
		if _, dup := seen[c.ID]; dup {
			return nil, xerrors.New(xerrors.CodeConfigFailure, fmt.Sprintf("课程 ID 重复: %d", c.ID))
		}
		seen[c.ID] = struct{}{}
	}
	return NewCatalog(courses), nil
}

// Courses 返回目录的副本，调用方可以随意修改。
func (c *Catalog) Courses() []Course {
	out := make([]Course, len(c.courses))
	copy(out, c.courses)
	return out
}

// Lookup 按 ID 查找目录条目。
func (c *Catalog) Lookup(id uint64) (Course, bool) {
	course, ok := c.byID[id]
	return course, ok
}

// Len 返回目录条目数。
func (c *Catalog) Len() int { return len(c.courses) }

// defaultCourses 是内置目录。奖励金额、完成状态等一律来自链上，
// 这里只有展示用的元数据。
func defaultCourses() []Course {
	return []Course{
		{
			ID:            1,
			Title:         "Blockchain Fundamentals",
			Description:   "Learn the core concepts of blockchain technology, consensus mechanisms, and distributed systems.",
			Instructor:    "Dr. Sarah Chen",
			Duration:      "6 weeks",
			Difficulty:    "Beginner",
			Category:      "Blockchain",
			Enrolled:      1250,
			MaxEnrollment: 2000,
			Rating:        4.8,
			Image:         "/courses/blockchain-fundamentals.jpg",
		},
		{
			ID:            2,
			Title:         "Smart Contract Development",
			Description:   "Master smart contract development with hands-on projects and security best practices.",
			Instructor:    "Alex Rodriguez",
			Duration:      "8 weeks",
			Difficulty:    "Intermediate",
			Category:      "Development",
			Enrolled:      890,
			MaxEnrollment: 1500,
			Rating:        4.9,
			Prerequisites: []string{"Blockchain Fundamentals"},
			Image:         "/courses/smart-contracts.jpg",
		},
		{
			ID:            3,
			Title:         "DeFi Protocol Design",
			Description:   "Explore decentralized finance protocols, liquidity pools, and yield farming strategies.",
			Instructor:    "Michael Park",
			Duration:      "10 weeks",
			Difficulty:    "Advanced",
			Category:      "DeFi",
			Enrolled:      567,
			MaxEnrollment: 1000,
			Rating:        4.7,
			Prerequisites: []string{"Smart Contract Development"},
			Image:         "/courses/defi-design.jpg",
		},
		{
			ID:            4,
			Title:         "Web3 Frontend Integration",
			Description:   "Build modern dapp frontends that connect wallets and interact with on-chain contracts.",
			Instructor:    "Emma Wilson",
			Duration:      "5 weeks",
			Difficulty:    "Intermediate",
			Category:      "Development",
			Enrolled:      1100,
			MaxEnrollment: 1800,
			Rating:        4.6,
			Prerequisites: []string{"Blockchain Fundamentals"},
			Image:         "/courses/web3-frontend.jpg",
		},
		{
			ID:            5,
			Title:         "Tokenomics and Governance",
			Description:   "Understand token economic models, incentive design, and decentralized governance.",
			Instructor:    "Dr. James Liu",
			Duration:      "4 weeks",
			Difficulty:    "Beginner",
			Category:      "Economics",
			Enrolled:      780,
			MaxEnrollment: 1200,
			Rating:        4.5,
			Image:         "/courses/tokenomics.jpg",
		},
		{
			ID:            6,
			Title:         "Blockchain Security Auditing",
			Description:   "Learn to identify vulnerabilities in smart contracts and perform professional audits.",
			Instructor:    "Nina Petrov",
			Duration:      "12 weeks",
			Difficulty:    "Advanced",
			Category:      "Security",
			Enrolled:      340,
			MaxEnrollment: 600,
			Rating:        4.9,
			Prerequisites: []string{"Smart Contract Development", "DeFi Protocol Design"},
			Image:         "/courses/security-auditing.jpg",
		},
	}
}
