//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IRoomRepository interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoomByID(ctx context.Context, id domain.RoomID) (domain.Room, error)
	GetRoomByName(ctx context.Context, name string) (domain.Room, error)
	ListGroupRooms(ctx context.Context) ([]domain.Room, error)
	FindOrCreateDM(ctx context.Context, a, b string) (domain.Room, bool, error)
	EnsureRooms(ctx context.Context, names ...string) error
}

type RoomRepository struct {
	db      *badger.DB
	log     *slog.Logger
	retries int
}

func NewRoomRepository(db *badger.DB, log *slog.Logger, retries int) RoomRepository {
	return RoomRepository{db: db, log: log, retries: retries}
}

type DiskRoom struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Description  string    `json:"description,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const roomIDPrefix = "room:id:"

func roomIDKey(id domain.RoomID) string {
	return roomIDPrefix + id.String()
}

func roomNameKey(name string) string {
	return "room:name:" + normalizeKey(name)
}

func dmKey(a, b string) string {
	pair := domain.DirectPair(a, b)
	return fmt.Sprintf("dm:%s:%s", pair[0], pair[1])
}

// CreateRoom stores the room and reserves its name, case-insensitively.
func (r RoomRepository) CreateRoom(ctx context.Context, room domain.Room) error {
	return update(ctx, r.db, r.retries, func(txn *badger.Txn) error {
		return r.createLocked(txn, room)
	})
}

func (r RoomRepository) createLocked(txn *badger.Txn, room domain.Room) error {
	taken, err := exists(txn, roomNameKey(room.Name))
	if err != nil {
		return err
	}
	if taken {
		return errors.ErrRoomAlreadyExists
	}
	if err = setJSON(txn, roomIDKey(room.ID), fromRoom(room)); err != nil {
		return err
	}
	return txn.Set([]byte(roomNameKey(room.Name)), []byte(room.ID))
}

func (r RoomRepository) GetRoomByID(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, id)
		return err
	})
	return room, err
}

func (r RoomRepository) GetRoomByName(ctx context.Context, name string) (domain.Room, error) {
	var room domain.Room
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		id, err := getString(txn, roomNameKey(name))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		room, err = getRoom(txn, domain.RoomID(id))
		return err
	})
	return room, err
}

// ListGroupRooms returns every group room sorted by name. Direct rooms are private and never listed.
func (r RoomRepository) ListGroupRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(roomIDPrefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var dr DiskRoom
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dr)
			}); err != nil {
				return err
			}
			if domain.RoomType(dr.Type) == domain.RoomTypeGroup {
				rooms = append(rooms, toRoom(dr))
			}
		}
		return nil
	})
	sort.Slice(rooms, func(i, j int) bool {
		return normalizeKey(rooms[i].Name) < normalizeKey(rooms[j].Name)
	})
	return rooms, err
}

// FindOrCreateDM returns the direct room between a and b, creating it on first use.
// The boolean is true when the room was created by this call.
func (r RoomRepository) FindOrCreateDM(ctx context.Context, a, b string) (domain.Room, bool, error) {
	var room domain.Room
	var created bool
	err := update(ctx, r.db, r.retries, func(txn *badger.Txn) error {
		created = false
		id, err := getString(txn, dmKey(a, b))
		switch {
		case err == nil:
			room, err = getRoom(txn, domain.RoomID(id))
			return err
		case !goerrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		room = domain.NewDirectRoom(a, b)
		if err = r.createLocked(txn, room); err != nil {
			return err
		}
		created = true
		return txn.Set([]byte(dmKey(a, b)), []byte(room.ID))
	})
	return room, created, err
}

// EnsureRooms creates the named group rooms that don't exist yet.
func (r RoomRepository) EnsureRooms(ctx context.Context, names ...string) error {
	for _, name := range names {
		err := r.CreateRoom(ctx, domain.NewGroupRoom(name, "", nil))
		switch {
		case err == nil:
			r.log.Info("Room created", "name", name)
		case goerrors.Is(err, errors.ErrRoomAlreadyExists):
		default:
			return err
		}
	}
	return nil
}

func getRoom(txn *badger.Txn, id domain.RoomID) (domain.Room, error) {
	var dr DiskRoom
	err := getJSON(txn, roomIDKey(id), &dr)
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(dr), nil
}

func fromRoom(room domain.Room) DiskRoom {
	return DiskRoom{
		ID:           room.ID.String(),
		Name:         room.Name,
		Type:         string(room.Type),
		Description:  room.Description,
		Participants: room.Participants,
		CreatedAt:    room.CreatedAt,
	}
}

func toRoom(dr DiskRoom) domain.Room {
	return domain.Room{
		ID:           domain.RoomID(dr.ID),
		Name:         dr.Name,
		Type:         domain.RoomType(dr.Type),
		Description:  dr.Description,
		Participants: dr.Participants,
		CreatedAt:    dr.CreatedAt.UTC(),
	}
}
