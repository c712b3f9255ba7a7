package models

import (
	"time"

	"gorm.io/gorm"
)

// Tenant is one customer workspace. Every domain row carries TenantID.
type Tenant struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	Slug     string `gorm:"not null;uniqueIndex" json:"slug"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Operator alerting
	AlertEmail string `json:"alert_email"`

	// Relations
	Users       []User               `gorm:"foreignKey:TenantID" json:"users,omitempty"`
	Credentials []ProviderCredential `gorm:"foreignKey:TenantID" json:"credentials,omitempty"`
	Mailboxes   []Mailbox            `gorm:"foreignKey:TenantID" json:"mailboxes,omitempty"`
}

// User is an operator account inside a tenant
type User struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Email        string `gorm:"not null;index" json:"email"`
	Name         string `json:"name"`
	PasswordHash string `gorm:"not null" json:"-"`

	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`

	// Relations
	Tenant Tenant `json:"-"`
}

// ProviderCredential holds one delivery provider API key for a tenant.
// Keys are encrypted at rest (utils.Encrypt) and resolved per request,
// never cached in package-level clients.
type ProviderCredential struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Provider        string `gorm:"not null;index" json:"provider"` // smartlead, nureply, instantly, heyreach
	APIKeyEncrypted string `gorm:"not null" json:"-"`
	BaseURL         string `json:"base_url"` // override for testing/self-hosted proxies
	IsActive        bool   `gorm:"default:true" json:"is_active"`

	LastUsedAt *time.Time `json:"last_used_at"`
	LastError  string     `json:"last_error"`
}

// Mailbox is a tenant inbox polled for replies (IMAP)
type Mailbox struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Email             string     `gorm:"not null" json:"email"`
	IMAPHost          string     `json:"imap_host"`
	IMAPPort          int        `gorm:"default:993" json:"imap_port"`
	IMAPUsername      string     `json:"imap_username"`
	IMAPPasswordEnc   string     `json:"-"`
	LastPolledAt      *time.Time `json:"last_polled_at"`
	LastSeenUID       uint32     `gorm:"default:0" json:"-"`
	PollingEnabled    bool       `gorm:"default:true" json:"polling_enabled"`
	ConsecutiveErrors int        `gorm:"default:0" json:"-"`
}
