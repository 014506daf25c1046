package service

import "errors"

var (
	ErrRoomNotFound  = errors.New("room_not_found")
	ErrRoomFull      = errors.New("room_is_full")
	ErrUserNotInRoom = errors.New("user_not_in_room")
	ErrForbidden     = errors.New("forbidden")
	ErrScreenBusy    = errors.New("screen_busy")
	ErrValidation    = errors.New("validation")
	ErrInternal      = errors.New("internal")
)
