package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "chat_42", RoomKey(42))
	assert.NotEqual(t, RoomKey(42), RoomKey(43))
}

func TestPrivateKeySymmetric(t *testing.T) {
	assert.Equal(t, "private_chat_5_9", PrivateKey(5, 9))
	assert.Equal(t, "private_chat_5_9", PrivateKey(9, 5))

	pairs := [][2]int64{{1, 2}, {2, 1}, {7, 7}, {100, 3}, {3, 100}}
	for _, p := range pairs {
		assert.Equal(t, PrivateKey(p[0], p[1]), PrivateKey(p[1], p[0]), "key must not depend on connection order")
	}
}

func TestPrivateKeyDistinct(t *testing.T) {
	assert.NotEqual(t, PrivateKey(1, 2), PrivateKey(1, 3))
	assert.NotEqual(t, PrivateKey(1, 2), PrivateKey(2, 3))
	// a numeric join without a separator would collide here
	assert.NotEqual(t, PrivateKey(1, 23), PrivateKey(12, 3))
}
