// Package transmit implements Transmit Core (C9): resolve the claimed
// sender's profile through the User Core RPC surface, compose the
// canonical MessageInfo envelope, publish it to the configured
// exchange/queue, and return the session's target id list. Grounded on
// spec.md §4.9 directly; the RPC-call shape reuses pkg/rpc.Call the way the
// teacher's pkg/client/client.go wraps a typed call over a pooled
// connection.
package transmit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/littleblus/breezechat/pkg/balancer"
	"github.com/littleblus/breezechat/pkg/idgen"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/types"
)

// UserClient is the subset of UserService's RPC surface Transmit Core
// calls: resolving the claimed sender's profile.
type UserClient interface {
	GetUserInfo(ctx context.Context, requestID, userID string) (types.UserInfo, error)
}

// getUserInfoRequest/getUserInfoResponse are the wire shapes exchanged with
// UserService over the JSON codec (pkg/rpc); they mirror the externally
// visible contract in spec.md §4.11 without importing pkg/user, since the
// two services only ever talk over RPC in a split deployment.
type getUserInfoRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
}

type getUserInfoResponse struct {
	Success   bool          `json:"success"`
	RequestID string        `json:"request_id"`
	ErrMsg    string        `json:"errmsg"`
	User      types.UserInfo `json:"user"`
}

// rpcUserClient implements UserClient by picking a connection from the
// "user" ServiceChannel pool and invoking GetUserInfo over it.
type rpcUserClient struct {
	manager *balancer.ServiceManager
}

// NewUserClient builds a UserClient dispatching through manager's "user"
// pool. manager must have "user" declared (ServiceManager.Declare) before
// any instance is discovered.
func NewUserClient(manager *balancer.ServiceManager) UserClient {
	return &rpcUserClient{manager: manager}
}

func (c *rpcUserClient) GetUserInfo(ctx context.Context, requestID, userID string) (types.UserInfo, error) {
	pool := c.manager.Pool("user")
	if pool == nil {
		return types.UserInfo{}, errors.New("transmit: no user service pool declared")
	}

	req := getUserInfoRequest{RequestID: requestID, UserID: userID}
	var resp getUserInfoResponse
	if err := rpc.CallWithRetry(ctx, pool, "/UserService/GetUserInfo", &req, &resp); err != nil {
		return types.UserInfo{}, fmt.Errorf("transmit: GetUserInfo call: %w", err)
	}
	if !resp.Success {
		return types.UserInfo{}, errors.New(resp.ErrMsg)
	}
	return resp.User, nil
}

// SessionStore is the subset of pkg/relational.Store Transmit Core calls to
// enumerate a chat session's members.
type SessionStore interface {
	ListSessionMembers(ctx context.Context, sessionID string) ([]string, error)
}

// Publisher is the subset of pkg/broker.Broker Transmit Core calls to
// publish the composed envelope.
type Publisher interface {
	Publish(exchange, routingKey string, payload []byte) bool
}

// Service implements GetTransmitTarget, the sole operation MsgTransmitService
// exposes (spec.md §6).
type Service struct {
	Users      UserClient
	Sessions   SessionStore
	Pub        Publisher
	Exchange   string
	RoutingKey string // defaults to "message" when empty
}

// Result is GetTransmitTarget's response shape.
type Result struct {
	Success      bool
	RequestID    string
	ErrMsg       string
	Envelope     types.MessageInfo
	TargetIDList []string
}

// GetTransmitTarget implements spec.md §4.9's five-step algorithm.
func (s *Service) GetTransmitTarget(ctx context.Context, requestID, userID, chatSessionID string, msg types.Message) Result {
	rlog := log.WithRequestID(requestID)

	sender, err := s.Users.GetUserInfo(ctx, requestID, userID)
	if err != nil {
		rlog.Error().Err(err).Msg("user service unavailable")
		return Result{RequestID: requestID, ErrMsg: "获取user服务失败"}
	}

	msg.MessageID = idgen.New16Hex()
	msg.UserID = userID
	msg.SessionID = chatSessionID
	msg.CreateTime = time.Now().Truncate(time.Second)

	envelope := types.MessageInfo{
		MessageID:     msg.MessageID,
		ChatSessionID: chatSessionID,
		Timestamp:     msg.CreateTime.Unix(),
		Sender:        sender,
		Message:       msg,
	}

	targets, err := s.Sessions.ListSessionMembers(ctx, chatSessionID)
	if err != nil {
		rlog.Error().Err(err).Msg("session member lookup failed")
		return Result{RequestID: requestID, ErrMsg: "获取会话成员失败"}
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		rlog.Error().Err(err).Msg("envelope marshal failed")
		return Result{RequestID: requestID, ErrMsg: "消息序列化失败"}
	}

	routingKey := s.RoutingKey
	if routingKey == "" {
		routingKey = "message"
	}
	if ok := s.Pub.Publish(s.Exchange, routingKey, payload); !ok {
		rlog.Error().Msg("broker publish failed")
		return Result{RequestID: requestID, ErrMsg: "消息发布失败"}
	}

	return Result{
		Success:      true,
		RequestID:    requestID,
		Envelope:     envelope,
		TargetIDList: targets,
	}
}
