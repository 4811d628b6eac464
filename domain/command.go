package domain

// PostMessageCommand is the canonical internal shape of a post,
// whatever encoding the client used. Room holds either a room id or a room name;
// an empty Room means the default room.
type PostMessageCommand struct {
	Room     string
	Identity *Identity
	Content  string
}

// JoinRoomCommand and LeaveRoomCommand carry a room id or name.
type JoinRoomCommand struct {
	Room string
}

type LeaveRoomCommand struct {
	Room string
}
