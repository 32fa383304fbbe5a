package transmit

import (
	"context"

	"google.golang.org/grpc"

	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/types"
)

type getTransmitTargetRequest struct {
	RequestID     string        `json:"request_id"`
	UserID        string        `json:"user_id"`
	ChatSessionID string        `json:"chat_session_id"`
	Message       types.Message `json:"message"`
}

type getTransmitTargetResponse struct {
	Success      bool              `json:"success"`
	RequestID    string            `json:"request_id"`
	ErrMsg       string            `json:"errmsg"`
	Envelope     types.MessageInfo `json:"envelope"`
	TargetIDList []string          `json:"target_id_list"`
}

// ServiceDesc builds the MsgTransmitService grpc.ServiceDesc exposing the
// sole operation spec.md §6 names: GetTransmitTarget.
func (s *Service) ServiceDesc() grpc.ServiceDesc {
	return rpc.BuildServiceDesc("MsgTransmitService", s, []rpc.Method{
		{
			Name:       "GetTransmitTarget",
			NewRequest: func() any { return &getTransmitTargetRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*getTransmitTargetRequest)
				res := s.GetTransmitTarget(ctx, r.RequestID, r.UserID, r.ChatSessionID, r.Message)
				return getTransmitTargetResponse{
					Success: res.Success, RequestID: res.RequestID, ErrMsg: res.ErrMsg,
					Envelope: res.Envelope, TargetIDList: res.TargetIDList,
				}, nil
			},
		},
	})
}
