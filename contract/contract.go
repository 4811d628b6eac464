//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"educonnect/domain"
	"educonnect/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging during supervision, so workers don't carry a name field.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// RegistryStats is a point in time view of the registry.
type RegistryStats struct {
	Connections int
	Rooms       int
	Members     int
}

type IRegistry interface {
	Register(connID domain.ConnectionID, sink EventSink)
	Unregister(connID domain.ConnectionID) (domain.RoomID, bool)
	Join(connID domain.ConnectionID, roomID domain.RoomID) (domain.RoomID, error)
	Leave(connID domain.ConnectionID, roomID domain.RoomID) bool
	MembersOf(roomID domain.RoomID) []EventSink
	CurrentRoomOf(connID domain.ConnectionID) (domain.RoomID, bool)
	Stats() RegistryStats
}

// IRoomResolver turns what a client sent (room id, room name or nothing) into a stored room.
type IRoomResolver interface {
	Resolve(ctx context.Context, ref string) (domain.Room, error)
}

// IBroadcaster persists a message then delivers it to the room members.
type IBroadcaster interface {
	Post(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
}

type IModerator interface {
	Censor(content string) (string, []string)
}

// IPublisher hands an event to the permanent sinks without waiting for them.
type IPublisher interface {
	Publish(evt event.DomainEvent)
}

// IDisconnector closes every live connection a user holds.
type IDisconnector interface {
	DisconnectUser(userID string) int
}
