package runtime

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/errors"
	"educonnect/repositories"
	goerrors "errors"
	"strings"
)

var _ contract.IRoomResolver = RoomResolver{}

// RoomResolver accepts a room id or a room name, older clients only know names.
// An empty reference means the default room.
type RoomResolver struct {
	rooms       repositories.IRoomRepository
	defaultRoom string
}

func NewRoomResolver(rooms repositories.IRoomRepository, defaultRoom string) RoomResolver {
	return RoomResolver{rooms: rooms, defaultRoom: defaultRoom}
}

func (r RoomResolver) Resolve(ctx context.Context, ref string) (domain.Room, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = r.defaultRoom
	}
	room, err := r.rooms.GetRoomByID(ctx, domain.RoomID(ref))
	if err == nil {
		return room, nil
	}
	if !goerrors.Is(err, errors.ErrRoomNotFound) {
		return domain.Room{}, err
	}
	return r.rooms.GetRoomByName(ctx, ref)
}
