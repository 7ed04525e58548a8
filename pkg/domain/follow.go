package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Follow is a directed edge in the social graph: Follower follows Followee.
type Follow struct {
	FollowerID uuid.UUID
	FolloweeID uuid.UUID
	CreatedAt  time.Time
}

// AccountQuery filters and pages a directory listing.
type AccountQuery struct {
	Page   int
	Limit  int
	Role   Role
	Status Status
	// Search matches name or email, case-insensitive.
	Search string
}

// Offset returns the number of rows to skip for the query's page. It
// saturates at math.MaxInt instead of overflowing.
func (q AccountQuery) Offset() int {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// AccountStats summarizes the directory.
type AccountStats struct {
	TotalUsers    int `json:"total_users"`
	ActiveUsers   int `json:"active_users"`
	AdminUsers    int `json:"admin_users"`
	InactiveUsers int `json:"inactive_users"`
}
