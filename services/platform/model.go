package platform

import (
	"time"

	"github.com/lib/pq"
)

type PlatformStatus string

const (
	PlatformStatusActive    PlatformStatus = "active"
	PlatformStatusSuspended PlatformStatus = "suspended"
)

// Platform is a gig platform allowed to deliver task-completion webhooks.
// The API key identifies the caller; the webhook secret signs payloads.
type Platform struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Name            string         `gorm:"column:name;not null"`
	APIKeyID        string         `gorm:"column:api_key_id;uniqueIndex;not null"` // e.g. gp_live_xxx
	WebhookSecret   string         `gorm:"column:webhook_secret;not null"`
	WebhooksEnabled bool           `gorm:"column:webhooks_enabled;default:true;not null"`
	Status          PlatformStatus `gorm:"column:status;default:'active';not null"`
	Timezone        string         `gorm:"column:timezone"`
	WalletAddress   string         `gorm:"column:wallet_address;not null"`
	Scopes          pq.StringArray `gorm:"column:scopes;type:text[]"` // e.g. {'webhooks.deliver','dlq.read'}
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Platform) TableName() string { return "platforms" }

func (p *Platform) Active() bool {
	return p.Status == PlatformStatusActive
}
