// Package fileclient is the RPC-side File Core (C12) client shared by
// every process that needs to offload or fetch a blob without linking
// pkg/blobstore directly: User Core (avatar upload/fetch) and Storage
// Consumer (FILE/IMAGE/SPEECH offload). It picks a connection from the
// balancer's "file" pool and calls FileService the same way
// pkg/transmit's rpcUserClient calls UserService.
package fileclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/littleblus/breezechat/pkg/balancer"
	"github.com/littleblus/breezechat/pkg/rpc"
)

// Client implements both pkg/user.FileClient and
// pkg/storageconsumer.FileUploader's PutSingleFile subset.
type Client struct {
	manager *balancer.ServiceManager
}

// New builds a Client dispatching through manager's "file" pool. manager
// must have "file" declared before any instance is discovered.
func New(manager *balancer.ServiceManager) *Client {
	return &Client{manager: manager}
}

func (c *Client) pool() (*balancer.ServiceChannel, error) {
	pool := c.manager.Pool("file")
	if pool == nil {
		return nil, errors.New("fileclient: no file service pool declared")
	}
	return pool, nil
}

type putRequest struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
	Size    int64  `json:"size"`
}

type putResponse struct {
	Success bool   `json:"success"`
	ErrMsg  string `json:"errmsg"`
	FileID  string `json:"file_id"`
}

// PutSingleFile calls FileService.PutSingleFile.
func (c *Client) PutSingleFile(name string, content []byte, size int64) (string, error) {
	pool, err := c.pool()
	if err != nil {
		return "", err
	}

	req := putRequest{Name: name, Content: content, Size: size}
	var resp putResponse
	ctx := context.Background()
	if err := rpc.CallWithRetry(ctx, pool, "/FileService/PutSingleFile", &req, &resp); err != nil {
		return "", fmt.Errorf("fileclient: PutSingleFile call: %w", err)
	}
	if !resp.Success {
		return "", errors.New(resp.ErrMsg)
	}
	return resp.FileID, nil
}

type getRequest struct {
	FileID string `json:"file_id"`
}

type getResponse struct {
	Success bool   `json:"success"`
	ErrMsg  string `json:"errmsg"`
	Content []byte `json:"content"`
}

// GetSingleFile calls FileService.GetSingleFile.
func (c *Client) GetSingleFile(fileID string) ([]byte, error) {
	pool, err := c.pool()
	if err != nil {
		return nil, err
	}

	req := getRequest{FileID: fileID}
	var resp getResponse
	ctx := context.Background()
	if err := rpc.CallWithRetry(ctx, pool, "/FileService/GetSingleFile", &req, &resp); err != nil {
		return nil, fmt.Errorf("fileclient: GetSingleFile call: %w", err)
	}
	if !resp.Success {
		return nil, errors.New(resp.ErrMsg)
	}
	return resp.Content, nil
}

type getMultiRequest struct {
	FileIDs []string `json:"file_ids"`
}

type getMultiResponse struct {
	Success bool              `json:"success"`
	ErrMsg  string            `json:"errmsg"`
	Files   map[string][]byte `json:"files"`
}

// GetMultiFile calls FileService.GetMultiFile.
func (c *Client) GetMultiFile(ids []string) (map[string][]byte, error) {
	pool, err := c.pool()
	if err != nil {
		return nil, err
	}

	req := getMultiRequest{FileIDs: ids}
	var resp getMultiResponse
	ctx := context.Background()
	if err := rpc.CallWithRetry(ctx, pool, "/FileService/GetMultiFile", &req, &resp); err != nil {
		return nil, fmt.Errorf("fileclient: GetMultiFile call: %w", err)
	}
	if !resp.Success {
		return nil, errors.New(resp.ErrMsg)
	}
	return resp.Files, nil
}
