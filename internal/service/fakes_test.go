package service_test

import (
	"sync"
)

// sentEvent 记录一次扇出投递，用于断言事件顺序。
type sentEvent struct {
	Topic      string // "room" / "lobby" / "user"
	RoomID     uint
	UserID     uint
	Event      string
	Payload    interface{}
	SkipUserID uint
}

// fanoutRecorder 按调用顺序记录所有广播，实现 service.Fanout。
type fanoutRecorder struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fanoutRecorder) ToRoom(roomID uint, event string, payload interface{}, skipUserID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Topic: "room", RoomID: roomID, Event: event, Payload: payload, SkipUserID: skipUserID})
}

func (f *fanoutRecorder) ToLobby(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Topic: "lobby", Event: event, Payload: payload})
}

func (f *fanoutRecorder) ToUser(userID uint, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Topic: "user", UserID: userID, Event: event, Payload: payload})
}

// names 返回记录的事件名序列，方便断言广播顺序。
func (f *fanoutRecorder) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Event
	}
	return out
}

// find 返回第一条指定事件名的记录。
func (f *fanoutRecorder) find(event string) (sentEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Event == event {
			return e, true
		}
	}
	return sentEvent{}, false
}

// scheduledGC 记录一次 GC 排期请求。
type scheduledGC struct {
	RoomID     uint
	EmptySince int64
	GCSeq      int64
}

// schedulerRecorder 实现 service.GCScheduler。
type schedulerRecorder struct {
	mu        sync.Mutex
	scheduled []scheduledGC
	err       error
}

func (s *schedulerRecorder) ScheduleRoomGC(roomID uint, emptySince, gcSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, scheduledGC{RoomID: roomID, EmptySince: emptySince, GCSeq: gcSeq})
	return nil
}
