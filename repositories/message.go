//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	StoreMessage(ctx context.Context, message domain.Message) error
	GetLatest(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
	GetMessages(ctx context.Context, room domain.RoomID, cursor *string, limit int) ([]domain.Message, *string, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	DeleteBySender(ctx context.Context, senderID string) ([]uuid.UUID, error)
}

type MessageRepository struct {
	db      *badger.DB
	log     *slog.Logger
	retries int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, retries int) MessageRepository {
	return MessageRepository{db: db, log: log, retries: retries}
}

type DiskMessage struct {
	ID         uuid.UUID `json:"id"`
	Room       string    `json:"room"`
	AuthorID   string    `json:"author_id"`
	Author     string    `json:"author"`
	AuthorRole string    `json:"author_role"`
	Content    string    `json:"content"`
	At         time.Time `json:"at"`
}

// messageKey is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Keep chronological order with 19-digit zero padding (lexicographical order).
//  2. Keep two messages arriving at the same nanosecond apart thanks to the uuid.
func messageKey(room domain.RoomID, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("msg:%s:%019d:%s", room, at.UnixNano(), id)
}

func messagePrefix(room domain.RoomID) string {
	return fmt.Sprintf("msg:%s:", room)
}

func messageIDKey(id uuid.UUID) string {
	return "msgid:" + id.String()
}

func senderKey(senderID string, id uuid.UUID) string {
	return fmt.Sprintf("msgsender:%s:%s", senderID, id)
}

// StoreMessage persists a message with its id and sender indexes in one transaction.
func (m MessageRepository) StoreMessage(ctx context.Context, message domain.Message) error {
	key := messageKey(message.Room, message.CreatedAt, message.ID)
	return update(ctx, m.db, m.retries, func(txn *badger.Txn) error {
		if err := setJSON(txn, key, fromMessage(message)); err != nil {
			return err
		}
		if err := txn.Set([]byte(messageIDKey(message.ID)), []byte(key)); err != nil {
			return err
		}
		return txn.Set([]byte(senderKey(message.SenderID, message.ID)), []byte(key))
	})
}

// GetLatest returns at most limit of the newest messages of the room, oldest first.
// The scan walks backwards from the end of the room prefix, then the page is reversed.
func (m MessageRepository) GetLatest(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	messages, _, err := m.scanBackwards(ctx, room, nil, limit)
	return messages, err
}

// GetMessages pages backwards through a room.
// A nil cursor starts from the newest message; the returned cursor points to the
// oldest message of the page and is nil once the beginning of the room is reached.
// Each page is returned oldest first.
func (m MessageRepository) GetMessages(ctx context.Context, room domain.RoomID, cursor *string, limit int) ([]domain.Message, *string, error) {
	return m.scanBackwards(ctx, room, cursor, limit)
}

func (m MessageRepository) scanBackwards(ctx context.Context, room domain.RoomID, cursor *string, limit int) ([]domain.Message, *string, error) {
	var diskMessages []DiskMessage
	var lastKey string
	hasMore := false

	err := view(ctx, m.db, func(txn *badger.Txn) error {
		prefixStr := messagePrefix(room)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// '~' sorts after every digit, so this lands on the newest key of the room
			seekKey = append([]byte(prefixStr), '~')
		default:
			seekKey = []byte(prefixStr + *cursor)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == prefixStr+*cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(diskMessages) == limit {
				hasMore = true
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[len(prefix):])
			var dm DiskMessage
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			}); err != nil {
				return err
			}
			diskMessages = append(diskMessages, dm)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slices.Reverse(diskMessages)
	messages := lo.Map(diskMessages, func(item DiskMessage, _ int) domain.Message {
		return toMessage(item)
	})
	if !hasMore {
		return messages, nil, nil
	}
	return messages, lo.ToPtr(lastKey), nil
}

func (m MessageRepository) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return update(ctx, m.db, m.retries, func(txn *badger.Txn) error {
		key, err := getString(txn, messageIDKey(id))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		var dm DiskMessage
		if err = getJSON(txn, key, &dm); err != nil && !goerrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err = txn.Delete([]byte(key)); err != nil {
			return err
		}
		if err = txn.Delete([]byte(messageIDKey(id))); err != nil {
			return err
		}
		return txn.Delete([]byte(senderKey(dm.AuthorID, id)))
	})
}

// deleteBatchSize keeps cascades far below Badger's transaction size limit.
const deleteBatchSize = 500

// DeleteBySender removes every message written by senderID and returns the deleted ids.
func (m MessageRepository) DeleteBySender(ctx context.Context, senderID string) ([]uuid.UUID, error) {
	var deletedIDs []uuid.UUID
	prefix := []byte(fmt.Sprintf("msgsender:%s:", senderID))
	for {
		var batch []uuid.UUID
		err := update(ctx, m.db, m.retries, func(txn *badger.Txn) error {
			batch = nil
			options := badger.DefaultIteratorOptions
			options.Prefix = prefix
			it := txn.NewIterator(options)
			var indexKeys, messageKeys [][]byte
			for it.Rewind(); it.ValidForPrefix(prefix) && len(indexKeys) < deleteBatchSize; it.Next() {
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					it.Close()
					return err
				}
				indexKeys = append(indexKeys, item.KeyCopy(nil))
				messageKeys = append(messageKeys, val)
			}
			it.Close()

			for i, indexKey := range indexKeys {
				id, err := uuid.Parse(string(indexKey[len(prefix):]))
				if err != nil {
					return err
				}
				for _, key := range [][]byte{messageKeys[i], []byte(messageIDKey(id)), indexKey} {
					if err = txn.Delete(key); err != nil {
						return err
					}
				}
				batch = append(batch, id)
			}
			return nil
		})
		if err != nil {
			return deletedIDs, err
		}
		deletedIDs = append(deletedIDs, batch...)
		if len(batch) < deleteBatchSize {
			m.log.Debug(fmt.Sprintf("%d messages deleted", len(deletedIDs)), "sender", senderID)
			return deletedIDs, nil
		}
	}
}

func fromMessage(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:         message.ID,
		Room:       message.Room.String(),
		AuthorID:   message.SenderID,
		Author:     message.SenderName,
		AuthorRole: string(message.SenderRole),
		Content:    message.Content,
		At:         message.CreatedAt,
	}
}

func toMessage(dm DiskMessage) domain.Message {
	return domain.Message{
		ID:         dm.ID,
		Room:       domain.RoomID(dm.Room),
		SenderID:   dm.AuthorID,
		SenderName: dm.Author,
		SenderRole: domain.Role(dm.AuthorRole),
		Content:    dm.Content,
		CreatedAt:  dm.At.UTC(),
	}
}
