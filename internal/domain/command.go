package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// 命令类型常量。日志中只存在这两种命令。
const (
	CommandStroke = "stroke" // 一次完整的笔画（落笔到抬笔的全部点）
	CommandClear  = "clear"  // 清空画布
)

// DrawingCommand 是房间绘图日志中的一条追加记录，写入后不可变。
// 主键 ID 的递增顺序即日志顺序，回放按 ID 升序进行。
type DrawingCommand struct {
	ID        uint      `gorm:"primaryKey"`         // 日志顺序 = 主键顺序
	RoomID    uint      `gorm:"index;not null"`     // 所属房间 (外键关联 Room.ID)
	Type      string    `gorm:"size:20;not null"`   // "stroke" 或 "clear"
	Data      string    `gorm:"type:text"`          // 命令数据，JSON 字符串；clear 命令为空
	Timestamp time.Time `gorm:"index;not null"`     // 服务端持久化时间
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Point 画布上的一个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeData 是 "stroke" 命令的数据结构：一次连续笔画的样式和完整点序列。
type StrokeData struct {
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Points []Point `json:"points"`
}

// Validate 校验笔画是否可以进入日志。
// 不满两个点的"笔画"只是一次点击，会实时广播但不持久化。
func (s StrokeData) Validate() error {
	if len(s.Points) < 2 {
		return errors.New("stroke requires at least 2 points")
	}
	return nil
}

// ParseStroke 将命令的 Data 字段 (JSON 字符串) 解析为 StrokeData。
// 对 clear 命令返回空结构体，不报错。
func (c *DrawingCommand) ParseStroke() (StrokeData, error) {
	var data StrokeData
	if c.Type != CommandStroke {
		return data, nil
	}
	if c.Data == "" || c.Data == "null" {
		return data, fmt.Errorf("command data is empty for type %s", c.Type)
	}
	if err := json.Unmarshal([]byte(c.Data), &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal stroke data: %w", err)
	}
	return data, nil
}

// SetStroke 将 StrokeData 序列化为 JSON 字符串并写入 Data 字段。
func (c *DrawingCommand) SetStroke(data StrokeData) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal stroke data: %w", err)
	}
	c.Type = CommandStroke
	c.Data = string(bytes)
	return nil
}

// NewClearCommand 构造一条清空画布命令。
func NewClearCommand(ts time.Time) DrawingCommand {
	return DrawingCommand{Type: CommandClear, Data: "{}", Timestamp: ts}
}
