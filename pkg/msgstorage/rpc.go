package msgstorage

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"

	"github.com/littleblus/breezechat/pkg/balancer"
	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/types"
)

// rpcUserClient implements UserClient by picking a connection from the
// "user" ServiceChannel pool and invoking GetMultiUserInfo over it, the
// same shape pkg/transmit's rpcUserClient uses for the single-profile call.
type rpcUserClient struct {
	manager *balancer.ServiceManager
}

// NewUserClient builds a UserClient dispatching through manager's "user"
// pool. manager must have "user" declared before any instance is
// discovered.
func NewUserClient(manager *balancer.ServiceManager) UserClient {
	return &rpcUserClient{manager: manager}
}

type multiUserInfoRequest struct {
	RequestID string   `json:"request_id"`
	UserIDs   []string `json:"user_ids"`
}

type multiUserInfoResponse struct {
	Success   bool             `json:"success"`
	RequestID string           `json:"request_id"`
	ErrMsg    string           `json:"errmsg"`
	Users     []types.UserInfo `json:"users"`
}

func (c *rpcUserClient) GetMultiUserInfo(ctx context.Context, requestID string, userIDs []string) (map[string]types.UserInfo, error) {
	pool := c.manager.Pool("user")
	if pool == nil {
		return nil, errors.New("msgstorage: no user service pool declared")
	}

	req := multiUserInfoRequest{RequestID: requestID, UserIDs: userIDs}
	var resp multiUserInfoResponse
	if err := rpc.CallWithRetry(ctx, pool, "/UserService/GetMultiUserInfo", &req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.ErrMsg)
	}
	out := make(map[string]types.UserInfo, len(resp.Users))
	for _, u := range resp.Users {
		out[u.UserID] = u
	}
	return out, nil
}

type historyRequest struct {
	RequestID     string `json:"request_id"`
	ChatSessionID string `json:"chat_session_id"`
	StartTime     int64  `json:"start_time"`
	OverTime      int64  `json:"over_time"`
}

type recentRequest struct {
	RequestID     string `json:"request_id"`
	ChatSessionID string `json:"chat_session_id"`
	MsgCount      int    `json:"msg_count"`
	CurTime       int64  `json:"cur_time"`
}

type searchRequest struct {
	RequestID     string `json:"request_id"`
	ChatSessionID string `json:"chat_session_id"`
	SearchKey     string `json:"search_key"`
}

type queryResponse struct {
	Success   bool                `json:"success"`
	RequestID string              `json:"request_id"`
	ErrMsg    string              `json:"errmsg"`
	MsgList   []types.MessageInfo `json:"msg_list"`
}

func toQueryResponse(r QueryResult) queryResponse {
	return queryResponse{Success: r.Success, RequestID: r.RequestID, ErrMsg: r.ErrMsg, MsgList: r.Messages}
}

// ServiceDesc builds the MsgStorageService grpc.ServiceDesc exposing
// GetHistoryMsg, GetRecentMsg, and MsgSearch (spec.md §6), decoding each
// request with pkg/rpc's JSON codec and dispatching straight into s.
func (s *Service) ServiceDesc() grpc.ServiceDesc {
	return rpc.BuildServiceDesc("MsgStorageService", s, []rpc.Method{
		{
			Name:       "GetHistoryMsg",
			NewRequest: func() any { return &historyRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*historyRequest)
				res := s.GetHistoryMsg(ctx, r.RequestID, r.ChatSessionID,
					time.Unix(r.StartTime, 0), time.Unix(r.OverTime, 0))
				return toQueryResponse(res), nil
			},
		},
		{
			Name:       "GetRecentMsg",
			NewRequest: func() any { return &recentRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*recentRequest)
				res := s.GetRecentMsg(ctx, r.RequestID, r.ChatSessionID, r.MsgCount, time.Unix(r.CurTime, 0))
				return toQueryResponse(res), nil
			},
		},
		{
			Name:       "MsgSearch",
			NewRequest: func() any { return &searchRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*searchRequest)
				res := s.MsgSearch(ctx, r.RequestID, r.ChatSessionID, r.SearchKey)
				return toQueryResponse(res), nil
			},
		},
	})
}
