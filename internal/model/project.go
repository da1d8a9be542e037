package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyPurpose identifies the usage context of an API key. Each project
// carries one key per purpose and each is independently rotatable.
type KeyPurpose string

const (
	KeyPurposeLive KeyPurpose = "live"
	KeyPurposeTest KeyPurpose = "test"
	KeyPurposeProj KeyPurpose = "proj"
)

// KeyPurposes lists all purposes in a stable order.
var KeyPurposes = []KeyPurpose{KeyPurposeLive, KeyPurposeTest, KeyPurposeProj}

// ParseKeyPurpose validates a purpose name.
func ParseKeyPurpose(s string) (KeyPurpose, bool) {
	switch KeyPurpose(strings.ToLower(s)) {
	case KeyPurposeLive:
		return KeyPurposeLive, true
	case KeyPurposeTest:
		return KeyPurposeTest, true
	case KeyPurposeProj:
		return KeyPurposeProj, true
	default:
		return "", false
	}
}

// PurposeOfKey classifies a presented API key by its purpose prefix.
func PurposeOfKey(apiKey string) (KeyPurpose, bool) {
	for _, p := range KeyPurposes {
		if strings.HasPrefix(apiKey, string(p)+".") {
			return p, true
		}
	}
	return "", false
}

// Project is the full serialized state of a project aggregate as of one
// version. Every accepted write stores a complete snapshot, not a diff.
type Project struct {
	ProjectID     uuid.UUID `json:"projectId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Enabled       bool      `json:"enabled"`
	Deleted       bool      `json:"deleted"`
	HashedLiveKey string    `json:"hashedLiveKey"`
	HashedTestKey string    `json:"hashedTestKey"`
	HashedProjKey string    `json:"hashedProjKey"`
	LiveKeyPrefix string    `json:"liveKeyPrefix"`
	TestKeyPrefix string    `json:"testKeyPrefix"`
	ProjKeyPrefix string    `json:"projKeyPrefix"`
	CreatedOn     time.Time `json:"createdOn"`
}

// HashedKey returns the stored hash for the given purpose.
func (p *Project) HashedKey(purpose KeyPurpose) string {
	switch purpose {
	case KeyPurposeLive:
		return p.HashedLiveKey
	case KeyPurposeTest:
		return p.HashedTestKey
	default:
		return p.HashedProjKey
	}
}

// SetKey replaces the hash and display prefix for one purpose.
func (p *Project) SetKey(purpose KeyPurpose, hashed, prefix string) {
	switch purpose {
	case KeyPurposeLive:
		p.HashedLiveKey = hashed
		p.LiveKeyPrefix = prefix
	case KeyPurposeTest:
		p.HashedTestKey = hashed
		p.TestKeyPrefix = prefix
	default:
		p.HashedProjKey = hashed
		p.ProjKeyPrefix = prefix
	}
}

// VersionedProject pairs a snapshot with its stream version.
type VersionedProject struct {
	Project Project
	Version int
}

// ProjectStream is one immutable row of a project's version history.
// The "current" state of a stream is the row with the highest version.
type ProjectStream struct {
	ID         int64
	TenantID   string
	StreamID   uuid.UUID
	Version    int
	Data       []byte
	Event      string
	InsertedAt time.Time
	InsertedBy string
}

// Stream event labels.
const (
	EventProjectCreated = "ProjectCreated"
	EventProjectUpdated = "ProjectUpdated"
	EventProjectDeleted = "ProjectDeleted"
	EventAPIKeyReset    = "ApiKeyReset"
)

// ProjectUniqueConstraint mirrors the exclusivity-constrained fields of the
// current, non-deleted snapshot. The stream's data column is schema-flexible
// and cannot carry native uniqueness, so this narrow side table is the
// uniqueness source of truth. A row exists iff the project is live.
type ProjectUniqueConstraint struct {
	ProjectID     uuid.UUID
	TenantID      string
	Name          string
	HashedLiveKey string
	HashedTestKey string
	HashedProjKey string
}

// ProjectUser maps a user to a project they are authorized to access.
type ProjectUser struct {
	ID         int64
	ProjectID  uuid.UUID
	TenantID   string
	UserID     string
	Email      string
	InsertedAt time.Time
	InsertedBy string
}
