package vbu

import "time"

// VBU is a business unit owned by a GM and optionally overseen by a group
// leader. Every VBU has exactly one canvas.
type VBU struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	GMID          string    `json:"gm_id"`
	GMName        string    `json:"gm_name"`
	GroupLeaderID *string   `json:"group_leader_id"`
	UpdatedBy     *string   `json:"updated_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
