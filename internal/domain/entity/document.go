// Package entity 定义领域实体
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// Document 归档文档
type Document struct {
	ID          string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title       string         `json:"title" gorm:"type:varchar(512);not null"`
	Source      string         `json:"source,omitempty" gorm:"type:varchar(512)"`
	Content     string         `json:"content" gorm:"type:text;not null"`
	ContentHash string         `json:"content_hash" gorm:"type:char(64);uniqueIndex;not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// NewDocument 创建新文档，内容哈希用于去重
func NewDocument(title, source, content string) *Document {
	return &Document{
		Title:       title,
		Source:      source,
		Content:     content,
		ContentHash: HashContent(content),
		CreatedAt:   time.Now(),
	}
}

// HashContent 计算文档内容的 SHA-256 十六进制摘要
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
