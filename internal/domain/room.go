package domain

type RoomName string

// Room is the identity of one broadcast domain. Messages sent within it
// are visible only to its current members.
type Room struct {
	Name RoomName
}
