package model

import "time"

// ForgeStatus tracks a forge through its lifecycle.
type ForgeStatus string

const (
	ForgeStatusDraft        ForgeStatus = "draft"
	ForgeStatusInterviewing ForgeStatus = "interviewing"
	ForgeStatusProcessing   ForgeStatus = "processing"
	ForgeStatusGenerating   ForgeStatus = "generating"
	ForgeStatusComplete     ForgeStatus = "complete"
)

// Forge is one knowledge-capture engagement with a single expert.
type Forge struct {
	ID             string         `json:"id"`
	ExpertName     string         `json:"expert_name"`
	Domain         string         `json:"domain"`
	TargetAudience string         `json:"target_audience"`
	Depth          string         `json:"depth"`
	Status         ForgeStatus    `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
