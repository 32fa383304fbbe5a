// Package storageconsumer implements Storage Consumer (C10): the broker
// consumer registered on process start that deserializes a published
// MessageInfo envelope, offloads FILE/IMAGE/SPEECH blobs to the file
// service, writes the relational row, upserts STRING content into the
// search index, and compensates on partial multi-store failure. Grounded
// on spec.md §4.10 directly; the consumer-loop registration shape follows
// pkg/broker.Broker.Consume, itself adapted from the teacher's background
// worker-goroutine idiom.
package storageconsumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/littleblus/breezechat/pkg/blobstore"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/relational"
	"github.com/littleblus/breezechat/pkg/searchindex"
	"github.com/littleblus/breezechat/pkg/types"
)

var (
	_ MessageIndexer = (*searchindex.Index)(nil)
	_ MessageStore   = (*relational.Store)(nil)
	_ FileUploader   = (*blobstore.Store)(nil)
)

const messageIndexName = "message"

// MessageIndexer is the subset of pkg/searchindex.Index this package calls.
type MessageIndexer interface {
	Upsert(ctx context.Context, name, id string, doc any) error
	Delete(ctx context.Context, name, id string) error
}

// MessageStore is the subset of pkg/relational.Store this package calls.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *types.Message) error
}

// FileUploader is the subset of pkg/blobstore.Store (or a File Core RPC
// client) this package calls to offload FILE/IMAGE/SPEECH content.
type FileUploader interface {
	PutSingleFile(name string, content []byte, size int64) (fileID string, err error)
}

// Service implements the consumer handler bound to a broker queue.
type Service struct {
	Index MessageIndexer
	Store MessageStore
	Files FileUploader
}

// searchDoc is the STRING-path document shape spec.md §4.10 names
// explicitly: {user_id, message_id, chat_session_id, create_time, content}.
type searchDoc struct {
	UserID        string `json:"user_id"`
	MessageID     string `json:"message_id"`
	ChatSessionID string `json:"chat_session_id"`
	CreateTime    int64  `json:"create_time"`
	Content       string `json:"content"`
}

// Handle is the pkg/broker.Handler bound to the configured queue: a nil
// return acknowledges the message, any other return leaves it unacked for
// broker redelivery (spec.md §4.10/§7).
func (s *Service) Handle(payload []byte) error {
	ctx := context.Background()
	clog := log.WithComponent("storageconsumer")

	var envelope types.MessageInfo
	if err := json.Unmarshal(payload, &envelope); err != nil {
		clog.Error().Err(err).Msg("poison message: envelope parse failed, dropping")
		return nil
	}
	msg := envelope.Message

	indexed := false
	switch msg.Type {
	case types.MessageTypeString:
		doc := searchDoc{
			UserID:        msg.UserID,
			MessageID:     msg.MessageID,
			ChatSessionID: msg.SessionID,
			CreateTime:    msg.CreateTime.Unix(),
			Content:       msg.Content,
		}
		if err := s.Index.Upsert(ctx, messageIndexName, msg.MessageID, doc); err != nil {
			clog.Error().Err(err).Str("message_id", msg.MessageID).Msg("search index upsert failed")
			return err
		}
		indexed = true

	case types.MessageTypeFile, types.MessageTypeImage, types.MessageTypeSpeech:
		fileID, err := s.Files.PutSingleFile(msg.FileName, msg.RawContent, msg.FileSize)
		if err != nil {
			clog.Error().Err(err).Str("message_id", msg.MessageID).Msg("file offload failed")
			return err
		}
		msg.FileID = fileID
		msg.RawContent = nil

	default:
		clog.Fatal().Str("type", string(msg.Type)).Msg("unknown message type in dispatch switch")
		return fmt.Errorf("storageconsumer: unknown message type %q", msg.Type)
	}

	if err := s.Store.InsertMessage(ctx, &msg); err != nil {
		clog.Error().Err(err).Str("message_id", msg.MessageID).Msg("relational insert failed")
		if indexed {
			if derr := s.Index.Delete(ctx, messageIndexName, msg.MessageID); derr != nil {
				log.Critical("compensating index delete failed after relational insert error", derr)
			}
		}
		return err
	}

	return nil
}
