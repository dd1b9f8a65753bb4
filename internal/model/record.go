package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// NoTag marks records the owner declined to tag.
const NoTag = "no_tag"

// Record is a stored note. Uniqueness of (owner, body, tag) is enforced
// through body_sha: a 4096-character utf8mb4 TEXT column cannot carry a
// MySQL unique index, the hash can.
type Record struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	OwnerID   int64     `gorm:"not null;index;uniqueIndex:idx_owner_body_tag,priority:1" json:"owner_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	BodySHA   string    `gorm:"size:64;not null;uniqueIndex:idx_owner_body_tag,priority:2" json:"-"`
	Name      string    `gorm:"size:1000" json:"name,omitempty"`
	Tag       string    `gorm:"size:100;not null;default:no_tag;index;uniqueIndex:idx_owner_body_tag,priority:3" json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

func (Record) TableName() string {
	return "records"
}

// HashBody returns the hex SHA-256 digest stored in body_sha.
func HashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
