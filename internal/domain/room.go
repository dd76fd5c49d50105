package domain

import "time"

// Room 表示一个共享画布房间。
// Code 是对外的房间码（6-8 位字母数字，区分大小写），ID 仅作数据库主键。
type Room struct {
	ID           uint      `gorm:"primaryKey"`                    // 房间唯一标识符 (主键)
	Code         string    `gorm:"uniqueIndex;size:191;not null"` // 房间码，全局唯一
	LastActivity time.Time `gorm:"index"`                         // 最后一次变更事件的时间，每次追加命令时更新
	CreatedAt    time.Time `gorm:"autoCreateTime"`                // 房间创建时间 (GORM 自动填充)
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
