// Package msgstorage implements MsgStorageService's query side: history
// range lookup, recent-n lookup, and full-text search over a chat session's
// messages. It is the read counterpart to pkg/storageconsumer's write path,
// grounded on spec.md §4.10/§6 and on original_source's message_server.hpp
// (GetHistoryMsg/GetRecentMsg/MsgSearch), which each assemble a result the
// same way: fetch message rows (or search hits), batch-resolve FILE/IMAGE/
// SPEECH blob content through File Core, batch-resolve sender profiles
// through User Core, and zip the three into []types.MessageInfo.
package msgstorage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/littleblus/breezechat/pkg/errs"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/relational"
	"github.com/littleblus/breezechat/pkg/searchindex"
	"github.com/littleblus/breezechat/pkg/types"
)

const messageIndexName = "message"

// MessageStore is the subset of pkg/relational.Store this package calls.
type MessageStore interface {
	RecentMessages(ctx context.Context, sessionID string, n int) ([]*types.Message, error)
	MessagesInRange(ctx context.Context, sessionID string, start, end time.Time) ([]*types.Message, error)
}

var _ MessageStore = (*relational.Store)(nil)

// MessageSearcher is the subset of pkg/searchindex.Index this package calls.
type MessageSearcher interface {
	Search(ctx context.Context, name string, q searchindex.Query) ([]searchindex.Hit, error)
}

var _ MessageSearcher = (*searchindex.Index)(nil)

// FileClient is the subset of File Core (C12) this package calls to batch
// resolve FILE/IMAGE/SPEECH blob content for a page of messages.
type FileClient interface {
	GetMultiFile(ids []string) (map[string][]byte, error)
}

// UserClient is the subset of User Core (C11) this package calls to batch
// resolve sender profiles for a page of messages.
type UserClient interface {
	GetMultiUserInfo(ctx context.Context, requestID string, userIDs []string) (map[string]types.UserInfo, error)
}

// Service implements GetHistoryMsg, GetRecentMsg, and MsgSearch, the three
// operations MsgStorageService exposes (spec.md §6).
type Service struct {
	Store MessageStore
	Index MessageSearcher
	Files FileClient
	Users UserClient
}

// QueryResult is the common response shape for all three operations.
type QueryResult struct {
	Success   bool
	RequestID string
	ErrMsg    string
	Messages  []types.MessageInfo
}

// GetHistoryMsg returns every message in chatSessionID with create_time in
// [startTime, overTime] inclusive.
func (s *Service) GetHistoryMsg(ctx context.Context, requestID, chatSessionID string, startTime, overTime time.Time) QueryResult {
	msgs, err := s.Store.MessagesInRange(ctx, chatSessionID, startTime, overTime)
	if err != nil {
		log.WithRequestID(requestID).Error().Err(err).Msg("history range query failed")
		return fail(requestID, errs.Dependency("获取历史消息失败", err))
	}
	return s.assemble(ctx, requestID, msgs)
}

// GetRecentMsg returns the msgCount most recent messages in chatSessionID.
// curTime is echoed from the original service's signature but, like
// original_source's get_recent, does not bound the query further: recency
// is entirely determined by msgCount against create_time DESC.
func (s *Service) GetRecentMsg(ctx context.Context, requestID, chatSessionID string, msgCount int, curTime time.Time) QueryResult {
	_ = curTime
	msgs, err := s.Store.RecentMessages(ctx, chatSessionID, msgCount)
	if err != nil {
		log.WithRequestID(requestID).Error().Err(err).Msg("recent message query failed")
		return fail(requestID, errs.Dependency("获取最近消息失败", err))
	}
	return s.assemble(ctx, requestID, msgs)
}

// searchDoc mirrors pkg/storageconsumer's STRING-path document shape: only
// STRING messages are ever indexed (spec.md §4.10), so a search hit is
// always decodable into this shape.
type searchDoc struct {
	UserID        string `json:"user_id"`
	MessageID     string `json:"message_id"`
	ChatSessionID string `json:"chat_session_id"`
	CreateTime    int64  `json:"create_time"`
	Content       string `json:"content"`
}

// MsgSearch runs a full-text query for searchKey scoped to chatSessionID
// against the "message" index.
func (s *Service) MsgSearch(ctx context.Context, requestID, chatSessionID, searchKey string) QueryResult {
	hits, err := s.Index.Search(ctx, messageIndexName, searchindex.Query{
		Must: []searchindex.Clause{
			{Field: "chat_session_id", Value: chatSessionID, Match: false},
			{Field: "content", Value: searchKey, Match: true},
		},
	})
	if err != nil {
		log.WithRequestID(requestID).Error().Err(err).Msg("message search failed")
		return fail(requestID, errs.Dependency("搜索消息失败", err))
	}

	msgs := make([]*types.Message, 0, len(hits))
	for _, h := range hits {
		raw, err := json.Marshal(h.Source)
		if err != nil {
			log.WithRequestID(requestID).Error().Err(err).Str("message_id", h.ID).Msg("search hit re-marshal failed")
			continue
		}
		var doc searchDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.WithRequestID(requestID).Error().Err(err).Str("message_id", h.ID).Msg("search hit decode failed")
			continue
		}
		msgs = append(msgs, &types.Message{
			MessageID:  doc.MessageID,
			UserID:     doc.UserID,
			SessionID:  doc.ChatSessionID,
			Type:       types.MessageTypeString,
			CreateTime: time.Unix(doc.CreateTime, 0),
			Content:    doc.Content,
		})
	}
	return s.assemble(ctx, requestID, msgs)
}

// assemble batch-resolves blob content and sender profiles for msgs and
// zips them into the canonical []types.MessageInfo response shape, the
// same three-step pattern original_source's message_server.hpp repeats
// across all three operations.
func (s *Service) assemble(ctx context.Context, requestID string, msgs []*types.Message) QueryResult {
	fileIDs := dedupeFileIDs(msgs)
	var files map[string][]byte
	if len(fileIDs) > 0 {
		var err error
		files, err = s.Files.GetMultiFile(fileIDs)
		if err != nil || len(files) != len(fileIDs) {
			log.WithRequestID(requestID).Error().Err(err).Msg("file service query failed")
			return fail(requestID, errs.Dependency("获取文件内容失败", err))
		}
	}

	userIDs := dedupeUserIDs(msgs)
	var users map[string]types.UserInfo
	if len(userIDs) > 0 {
		var err error
		users, err = s.Users.GetMultiUserInfo(ctx, requestID, userIDs)
		if err != nil || len(users) != len(userIDs) {
			log.WithRequestID(requestID).Error().Err(err).Msg("user service query failed")
			return fail(requestID, errs.Dependency("获取用户信息失败", err))
		}
	}

	out := make([]types.MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		mc := *m
		if mc.FileID != "" {
			mc.RawContent = files[mc.FileID]
		}
		out = append(out, types.MessageInfo{
			MessageID:     mc.MessageID,
			ChatSessionID: mc.SessionID,
			Timestamp:     mc.CreateTime.Unix(),
			Sender:        users[mc.UserID],
			Message:       mc,
		})
	}
	return QueryResult{Success: true, RequestID: requestID, Messages: out}
}

func dedupeFileIDs(msgs []*types.Message) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range msgs {
		if m.FileID == "" {
			continue
		}
		if _, ok := seen[m.FileID]; ok {
			continue
		}
		seen[m.FileID] = struct{}{}
		out = append(out, m.FileID)
	}
	return out
}

func dedupeUserIDs(msgs []*types.Message) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range msgs {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m.UserID)
	}
	return out
}

func fail(requestID string, err error) QueryResult {
	rlog := log.WithRequestID(requestID)
	switch errs.Classify(err) {
	case errs.KindDependency:
		rlog.Error().Err(err).Msg("message query failed")
	default:
		rlog.Debug().Err(err).Msg("message query rejected")
	}
	var e *errs.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Msg
	}
	return QueryResult{RequestID: requestID, ErrMsg: msg}
}
