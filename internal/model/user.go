package model

import "time"

// User 用户镜像表
// 身份服务是用户数据的源头，这里只保留消息域需要的字段，
// 由 Kafka 消费者同步维护。
type User struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"type:varchar(50)" json:"username"`
	AvatarURL string `gorm:"type:varchar(255)" json:"avatarUrl"`
	IsDeleted bool   `gorm:"type:tinyint(1);default:0" json:"isDeleted"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }
