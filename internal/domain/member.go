package domain

import (
	"fmt"
	"strings"
)

// 成员在房间内的有效角色。host 当且仅当 用户 == 房间创建者。
const (
	RoleHost  = "host"
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// 软状态位。mic/cam/speakers/visibility 存于 state hash，
// ready 存于 meta hash（block 翻转不应清掉 ready）。
const (
	KeyMic        = "mic"
	KeyCam        = "cam"
	KeySpeakers   = "speakers"
	KeyVisibility = "visibility"
	KeyReady      = "ready"
	KeyScreen     = "screen"
)

// StateKeys 是 state hash 中允许的键集合。
var StateKeys = []string{KeyMic, KeyCam, KeySpeakers, KeyVisibility}

// BlockKeys 是 block hash 中允许的键集合：四个状态键加 screen。
var BlockKeys = []string{KeyMic, KeyCam, KeySpeakers, KeyVisibility, KeyScreen}

// IsStateKey 报告 k 是否是合法的 state 键。
func IsStateKey(k string) bool {
	for _, s := range StateKeys {
		if s == k {
			return true
		}
	}
	return false
}

// IsBlockKey 报告 k 是否是合法的 block 键。
func IsBlockKey(k string) bool {
	for _, s := range BlockKeys {
		if s == k {
			return true
		}
	}
	return false
}

// ParseFlag 将客户端传来的布尔形值归一化为 "0"/"1"。
// 接受 bool、"0"/"1"、"true"/"false"（忽略大小写）和 JSON 数字 0/1。
func ParseFlag(v interface{}) (string, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true":
			return "1", true
		case "0", "false":
			return "0", true
		}
		return "", false
	case float64: // encoding/json 将数字解码为 float64
		if t == 1 {
			return "1", true
		}
		if t == 0 {
			return "0", true
		}
		return "", false
	default:
		return "", false
	}
}

// NormalizeStateInput 校验并归一化一组 state/ready 变更。
// 返回 state 键的变更与单独的 ready 值（没有则为空串）。
func NormalizeStateInput(changes map[string]interface{}) (map[string]string, string, error) {
	state := make(map[string]string, len(changes))
	ready := ""
	for k, v := range changes {
		val, ok := ParseFlag(v)
		if !ok {
			return nil, "", fmt.Errorf("domain: bad value for key %q", k)
		}
		switch {
		case k == KeyReady:
			ready = val
		case IsStateKey(k):
			state[k] = val
		default:
			return nil, "", fmt.Errorf("domain: unknown state key %q", k)
		}
	}
	return state, ready, nil
}

// NormalizeBlockInput 校验并归一化一组 block 变更。
func NormalizeBlockInput(changes map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string, len(changes))
	for k, v := range changes {
		if !IsBlockKey(k) {
			return nil, fmt.Errorf("domain: unknown block key %q", k)
		}
		val, ok := ParseFlag(v)
		if !ok {
			return nil, fmt.Errorf("domain: bad value for key %q", k)
		}
		out[k] = val
	}
	return out, nil
}

// DefaultState 返回四个状态位的初始值（全 "0"）。
func DefaultState() map[string]string {
	return map[string]string{
		KeyMic:        "0",
		KeyCam:        "0",
		KeySpeakers:   "0",
		KeyVisibility: "0",
	}
}

// Shift 描述一次座位压缩中某个成员的新位置。
type Shift struct {
	UserID   uint `json:"user_id"`
	Position int  `json:"position"`
}

// JoinStatus 是 JOIN 脚本的判定结果。
type JoinStatus string

const (
	JoinOK       JoinStatus = "ok"
	JoinFull     JoinStatus = "full"
	JoinNotFound JoinStatus = "not_found"
)

// JoinResult 是 JOIN 脚本的原子返回，调用方据此驱动广播。
type JoinResult struct {
	Status        JoinStatus
	Occupancy     int
	Position      int
	AlreadyMember bool
	Shifts        []Shift
}

// LeaveStatus 是 LEAVE 脚本的判定结果。
type LeaveStatus string

const (
	LeaveOK        LeaveStatus = "ok"
	LeaveNotFound  LeaveStatus = "not_found"
	LeaveNotMember LeaveStatus = "not_member"
)

// LeaveResult 是 LEAVE 脚本的原子返回。
// 房间变空时 GCSeq 为本轮递增后的序列号，否则为 0。
type LeaveResult struct {
	Status    LeaveStatus
	Occupancy int
	GCSeq     int64
	Shifts    []Shift
}

// MemberSnapshot 是快照中单个座位的观测值。
type MemberSnapshot struct {
	UserID   uint              `json:"user_id"`
	Position int               `json:"position"`
	Role     string            `json:"role"`
	State    map[string]string `json:"state"`
	Ready    string            `json:"ready"`
}

// RoomSnapshot 是 join 返回的房间完整观测真相，客户端以其为准进行对账。
type RoomSnapshot struct {
	RoomID      uint              `json:"room_id"`
	Members     []MemberSnapshot  `json:"members"`
	ScreenOwner *uint             `json:"screen_owner"`
	SelfBlocked map[string]string `json:"blocked"`
	SelfState   map[string]string `json:"self_pref"`
	Position    int               `json:"position"`
}
