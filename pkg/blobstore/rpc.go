package blobstore

import (
	"context"

	"google.golang.org/grpc"

	"github.com/littleblus/breezechat/pkg/rpc"
)

type putSingleRequest struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
	Size    int64  `json:"size"`
}

type putSingleResponse struct {
	Success bool   `json:"success"`
	ErrMsg  string `json:"errmsg"`
	FileID  string `json:"file_id"`
}

type fileInput struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
	Size    int64  `json:"size"`
}

type putMultiRequest struct {
	Files []fileInput `json:"files"`
}

type putMultiResponse struct {
	Success bool     `json:"success"`
	ErrMsg  string   `json:"errmsg"`
	FileIDs []string `json:"file_ids"`
}

type getSingleRequest struct {
	FileID string `json:"file_id"`
}

type getSingleResponse struct {
	Success bool   `json:"success"`
	ErrMsg  string `json:"errmsg"`
	Content []byte `json:"content"`
}

type getMultiRequest struct {
	FileIDs []string `json:"file_ids"`
}

type getMultiResponse struct {
	Success bool              `json:"success"`
	ErrMsg  string            `json:"errmsg"`
	Files   map[string][]byte `json:"files"`
}

// ServiceDesc builds the FileService grpc.ServiceDesc exposing the four
// operations spec.md §4.12 names, the RPC counterpart
// pkg/fileclient.Client dials into from every other process.
func (s *Store) ServiceDesc() grpc.ServiceDesc {
	return rpc.BuildServiceDesc("FileService", s, []rpc.Method{
		{
			Name:       "PutSingleFile",
			NewRequest: func() any { return &putSingleRequest{} },
			Handler: func(_ context.Context, req any) (any, error) {
				r := req.(*putSingleRequest)
				fileID, err := s.PutSingleFile(r.Name, r.Content, r.Size)
				if err != nil {
					return putSingleResponse{ErrMsg: err.Error()}, nil
				}
				return putSingleResponse{Success: true, FileID: fileID}, nil
			},
		},
		{
			Name:       "PutMultiFile",
			NewRequest: func() any { return &putMultiRequest{} },
			Handler: func(_ context.Context, req any) (any, error) {
				r := req.(*putMultiRequest)
				inputs := make([]FileInput, 0, len(r.Files))
				for _, f := range r.Files {
					inputs = append(inputs, FileInput{Name: f.Name, Content: f.Content, Size: f.Size})
				}
				ids, err := s.PutMultiFile(inputs)
				if err != nil {
					return putMultiResponse{ErrMsg: err.Error()}, nil
				}
				return putMultiResponse{Success: true, FileIDs: ids}, nil
			},
		},
		{
			Name:       "GetSingleFile",
			NewRequest: func() any { return &getSingleRequest{} },
			Handler: func(_ context.Context, req any) (any, error) {
				r := req.(*getSingleRequest)
				content, err := s.GetSingleFile(r.FileID)
				if err != nil {
					return getSingleResponse{ErrMsg: err.Error()}, nil
				}
				return getSingleResponse{Success: true, Content: content}, nil
			},
		},
		{
			Name:       "GetMultiFile",
			NewRequest: func() any { return &getMultiRequest{} },
			Handler: func(_ context.Context, req any) (any, error) {
				r := req.(*getMultiRequest)
				files, err := s.GetMultiFile(r.FileIDs)
				if err != nil {
					return getMultiResponse{ErrMsg: err.Error()}, nil
				}
				return getMultiResponse{Success: true, Files: files}, nil
			},
		},
	})
}
