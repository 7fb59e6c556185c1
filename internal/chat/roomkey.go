package chat

import "fmt"

// RoomKey derives the broadcast-group key for a group chat room.
func RoomKey(roomID int64) string {
	return fmt.Sprintf("chat_%d", roomID)
}

// PrivateKey derives the broadcast-group key for a pairwise chat. The two
// user ids are ordered ascending so both participants compute the same key
// regardless of which side connects first; this is what lets their
// independently-authenticated sessions land in the same group without a
// shared room row.
func PrivateKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("private_chat_%d_%d", userA, userB)
}
