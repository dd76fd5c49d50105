package domain

// CursorPosition 是某个连接最近上报的指针位置。
// 纯内存状态，永远不会写入绘图日志。
type CursorPosition struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color,omitempty"` // 远端显示光标用的颜色
}
