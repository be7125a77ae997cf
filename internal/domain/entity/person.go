// Package entity 定义领域实体
package entity

import (
	"time"
)

// Person 文档关联的人物，支持合并去重
type Person struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FullName   string    `json:"full_name" gorm:"type:varchar(255);not null"`
	Email      string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	MergedInto *string   `json:"merged_into,omitempty" gorm:"type:uuid;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Person) TableName() string {
	return "persons"
}

// NewPerson 创建新人物
func NewPerson(fullName, email string) *Person {
	return &Person{
		FullName:  fullName,
		Email:     email,
		CreatedAt: time.Now(),
	}
}

// IsMerged 是否已被合并到其他人物
func (p *Person) IsMerged() bool {
	return p.MergedInto != nil && *p.MergedInto != ""
}

// MergeInto 将当前人物标记为已合并
func (p *Person) MergeInto(targetID string) {
	p.MergedInto = &targetID
}
