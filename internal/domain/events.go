package domain

// 订阅主题的事件名。room:R 主题承载前六个，rooms 主题承载房间列表事件，
// user:U 主题承载定向控制事件。
const (
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
	EventPositions      = "positions"
	EventStateChanged   = "state_changed"
	EventBlocksChanged  = "blocks_changed"
	EventScreenChanged  = "screen_changed"
	EventRoomsUpsert    = "rooms_upsert"
	EventRoomsOccupancy = "rooms_occupancy"
	EventRoomsRemove    = "rooms_remove"
	EventForceLeave     = "force_leave"
	EventForceLogout    = "force_logout"
)

// MemberJoinedPayload 广播给除加入者外的所有房间订阅者。
type MemberJoinedPayload struct {
	UserID   uint              `json:"user_id"`
	State    map[string]string `json:"state"`
	Position int               `json:"position"`
	Role     string            `json:"role"`
}

type MemberLeftPayload struct {
	UserID uint `json:"user_id"`
}

type PositionsPayload struct {
	Updates []Shift `json:"updates"`
}

type BlocksChangedPayload struct {
	UserID    uint              `json:"user_id"`
	Applied   map[string]string `json:"applied"`
	ForcedOff map[string]string `json:"forced_off"`
}

// ScreenChangedPayload 的 Owner 为 nil 表示屏幕共享已释放。
type ScreenChangedPayload struct {
	Owner *uint `json:"owner"`
}

type RoomsOccupancyPayload struct {
	ID        uint `json:"id"`
	Occupancy int  `json:"occupancy"`
}

type RoomsRemovePayload struct {
	ID uint `json:"id"`
}

type ForceLeavePayload struct {
	RoomID uint `json:"room_id"`
}

// StateChangedPayload 的键集合是动态的：user_id 加上本次确实变化的键。
func StateChangedPayload(userID uint, changed map[string]string) map[string]interface{} {
	payload := make(map[string]interface{}, len(changed)+1)
	payload["user_id"] = userID
	for k, v := range changed {
		payload[k] = v
	}
	return payload
}
