//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_message_index.go -package=mocks
package repositories

import (
	"context"
	"educonnect/domain"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

// IMessageIndex is the full-text side of the message store.
// Badger stays the source of truth, the index can always be rebuilt from it.
type IMessageIndex interface {
	Index(message domain.Message) error
	Delete(ids ...uuid.UUID) error
	Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]domain.Message, error)
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

const (
	fieldRoom       = "room"
	fieldContent    = "content"
	fieldAuthorID   = "author_id"
	fieldAuthor     = "author"
	fieldAuthorRole = "author_role"
	fieldAt         = "at"
)

func (m *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldRoom, message.Room.String()).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, message.Content).StoreValue()).
		AddField(bluge.NewKeywordField(fieldAuthorID, message.SenderID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldAuthor, message.SenderName).StoreValue()).
		AddField(bluge.NewKeywordField(fieldAuthorRole, string(message.SenderRole)).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldAt, message.CreatedAt).StoreValue().Sortable())
	return m.writer.Update(doc.ID(), doc)
}

func (m *MessageIndex) Delete(ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	batch := bluge.NewBatch()
	for _, id := range ids {
		batch.Delete(bluge.Identifier(id.String()))
	}
	return m.writer.Batch(batch)
}

// Search matches every term against message contents of a single room, newest first.
func (m *MessageIndex) Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]domain.Message, error) {
	reader, err := m.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("unable to open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(room.String()).SetField(fieldRoom)).
		AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent).SetOperator(bluge.MatchQueryOperatorAnd))
	request := bluge.NewTopNSearch(limit, query).SortBy([]string{"-" + fieldAt})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	match, err := matches.Next()
	for err == nil && match != nil {
		var message domain.Message
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				message.ID, visitErr = uuid.ParseBytes(value)
			case fieldRoom:
				message.Room = domain.RoomID(value)
			case fieldContent:
				message.Content = string(value)
			case fieldAuthorID:
				message.SenderID = string(value)
			case fieldAuthor:
				message.SenderName = string(value)
			case fieldAuthorRole:
				message.SenderRole = domain.Role(value)
			case fieldAt:
				message.CreatedAt, visitErr = bluge.DecodeDateTime(value)
			}
			return visitErr == nil
		})
		if err == nil {
			err = visitErr
		}
		if err != nil {
			break
		}
		message.CreatedAt = message.CreatedAt.UTC()
		messages = append(messages, message)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	m.log.Debug(fmt.Sprintf("%d messages found", len(messages)), "room", room, "terms", terms)
	return messages, nil
}
