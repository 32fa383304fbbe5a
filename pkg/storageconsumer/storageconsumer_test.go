package storageconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleblus/breezechat/pkg/types"
)

type fakeIndex struct {
	upsertErr   error
	deleteErr   error
	upserted    []string
	deleted     []string
}

func (f *fakeIndex) Upsert(_ context.Context, _, id string, _ any) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, id)
	return nil
}

func (f *fakeIndex) Delete(_ context.Context, _, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeStore struct {
	insertErr error
	rows      []*types.Message
}

func (f *fakeStore) InsertMessage(_ context.Context, m *types.Message) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *m
	f.rows = append(f.rows, &cp)
	return nil
}

type fakeFiles struct {
	nextID string
	err    error
	calls  int
}

func (f *fakeFiles) PutSingleFile(_ string, _ []byte, _ int64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.nextID, nil
}

func envelopeBytes(t *testing.T, msg types.Message, sessionID string) []byte {
	t.Helper()
	envelope := types.MessageInfo{
		MessageID:     msg.MessageID,
		ChatSessionID: sessionID,
		Timestamp:     time.Now().Unix(),
		Message:       msg,
	}
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	return data
}

func TestHandleStringMessageIndexesThenInserts(t *testing.T) {
	index := &fakeIndex{}
	store := &fakeStore{}
	files := &fakeFiles{}
	svc := &Service{Index: index, Store: store, Files: files}

	payload := envelopeBytes(t, types.Message{
		MessageID: "m1", UserID: "u1", SessionID: "s1",
		Type: types.MessageTypeString, Content: "吃的盖浇饭！", CreateTime: time.Now(),
	}, "s1")

	err := svc.Handle(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, index.upserted)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "m1", store.rows[0].MessageID)
}

func TestHandleStringIndexFailureLeavesUnacked(t *testing.T) {
	index := &fakeIndex{upsertErr: errors.New("es down")}
	store := &fakeStore{}
	svc := &Service{Index: index, Store: store, Files: &fakeFiles{}}

	payload := envelopeBytes(t, types.Message{
		MessageID: "m2", Type: types.MessageTypeString, Content: "hi",
	}, "s1")

	err := svc.Handle(payload)
	assert.Error(t, err)
	assert.Empty(t, store.rows)
}

func TestHandleFileMessageOffloadsThenInserts(t *testing.T) {
	index := &fakeIndex{}
	store := &fakeStore{}
	files := &fakeFiles{nextID: "blob-1"}
	svc := &Service{Index: index, Store: store, Files: files}

	payload := envelopeBytes(t, types.Message{
		MessageID: "m3", Type: types.MessageTypeFile,
		FileName: "a.pdf", FileSize: 10, RawContent: []byte("0123456789"),
	}, "s1")

	err := svc.Handle(payload)
	require.NoError(t, err)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "blob-1", store.rows[0].FileID)
	assert.Empty(t, store.rows[0].RawContent)
	assert.Empty(t, index.upserted)
}

// TestHandleStringRelationalFailureCompensatesIndex covers spec.md §8
// invariant 7: if the relational insert fails after a successful STRING
// index upsert, the index is restored (here: deleted) to its pre-state.
func TestHandleStringRelationalFailureCompensatesIndex(t *testing.T) {
	index := &fakeIndex{}
	store := &fakeStore{insertErr: errors.New("db down")}
	svc := &Service{Index: index, Store: store, Files: &fakeFiles{}}

	payload := envelopeBytes(t, types.Message{
		MessageID: "m4", Type: types.MessageTypeString, Content: "hi",
	}, "s1")

	err := svc.Handle(payload)
	assert.Error(t, err)
	assert.Equal(t, []string{"m4"}, index.upserted)
	assert.Equal(t, []string{"m4"}, index.deleted)
}

// TestHandleImageRelationalFailureSkipsIndexCompensation covers scenario
// S6: IMAGE does not index, so a relational failure triggers no
// compensating index delete.
func TestHandleImageRelationalFailureSkipsIndexCompensation(t *testing.T) {
	index := &fakeIndex{}
	store := &fakeStore{insertErr: errors.New("db down")}
	files := &fakeFiles{nextID: "blob-2"}
	svc := &Service{Index: index, Store: store, Files: files}

	payload := envelopeBytes(t, types.Message{
		MessageID: "m5", Type: types.MessageTypeImage, RawContent: []byte("png-bytes"),
	}, "s1")

	err := svc.Handle(payload)
	assert.Error(t, err)
	assert.Empty(t, index.deleted)
	assert.Equal(t, 1, files.calls)
}

func TestHandlePoisonMessageAcksAndDrops(t *testing.T) {
	svc := &Service{Index: &fakeIndex{}, Store: &fakeStore{}, Files: &fakeFiles{}}
	err := svc.Handle([]byte("not json"))
	assert.NoError(t, err)
}
