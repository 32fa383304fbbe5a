package user

import (
	"context"

	"google.golang.org/grpc"

	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/types"
)

// requestID is embedded in every wire request per pkg/rpc's convention
// (see pkg/rpc.UnaryHandler's doc comment): the correlation id travels
// inside the request/response body, not as separate RPC metadata.

type registerRequest struct {
	RequestID string `json:"request_id"`
	Nickname  string `json:"nickname"`
	Password  string `json:"password"`
}

type registerResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	ErrMsg    string `json:"errmsg"`
	UserID    string `json:"user_id"`
}

func toRegisterResponse(r RegisterResult) registerResponse {
	return registerResponse{Success: r.Success, RequestID: r.RequestID, ErrMsg: r.ErrMsg, UserID: r.UserID}
}

type loginRequest struct {
	RequestID string `json:"request_id"`
	Nickname  string `json:"nickname"`
	Password  string `json:"password"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	ErrMsg    string `json:"errmsg"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func toLoginResponse(r LoginResult) loginResponse {
	return loginResponse{Success: r.Success, RequestID: r.RequestID, ErrMsg: r.ErrMsg, SessionID: r.SessionID, UserID: r.UserID}
}

type emailVerifyCodeRequest struct {
	RequestID string `json:"request_id"`
	Addr      string `json:"addr"`
}

type emailVerifyCodeResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	ErrMsg    string `json:"errmsg"`
	CodeID    string `json:"code_id"`
}

type emailCodeRequest struct {
	RequestID string `json:"request_id"`
	Addr      string `json:"addr"`
	CodeID    string `json:"code_id"`
	Code      string `json:"code"`
}

type userInfoRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
}

type userInfoResponse struct {
	Success   bool           `json:"success"`
	RequestID string         `json:"request_id"`
	ErrMsg    string         `json:"errmsg"`
	User      types.UserInfo `json:"user"`
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

type setAvatarRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	FileName  string `json:"file_name"`
	Content   []byte `json:"content"`
	Size      int64  `json:"size"`
}

type setNicknameRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Nickname  string `json:"nickname"`
}

type setDescriptionRequest struct {
	RequestID   string `json:"request_id"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	Description string `json:"description"`
}

type setEmailRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Addr      string `json:"addr"`
	CodeID    string `json:"code_id"`
	Code      string `json:"code"`
}

// ServiceDesc builds the UserService grpc.ServiceDesc exposing every
// operation spec.md §4.11 names, decoding each request with pkg/rpc's JSON
// codec and dispatching straight into s.
func (s *Service) ServiceDesc() grpc.ServiceDesc {
	return rpc.BuildServiceDesc("UserService", s, []rpc.Method{
		{
			Name:       "UserRegister",
			NewRequest: func() any { return &registerRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*registerRequest)
				res := s.UserRegister(ctx, r.RequestID, r.Nickname, r.Password)
				return toRegisterResponse(res), nil
			},
		},
		{
			Name:       "UserLogin",
			NewRequest: func() any { return &loginRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*loginRequest)
				res := s.UserLogin(ctx, r.RequestID, r.Nickname, r.Password)
				return toLoginResponse(res), nil
			},
		},
		{
			Name:       "GetEmailVerifyCode",
			NewRequest: func() any { return &emailVerifyCodeRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*emailVerifyCodeRequest)
				codeID, res := s.GetEmailVerifyCode(ctx, r.RequestID, r.Addr)
				return emailVerifyCodeResponse{
					Success: res.Success, RequestID: res.RequestID, ErrMsg: res.ErrMsg, CodeID: codeID,
				}, nil
			},
		},
		{
			Name:       "EmailRegister",
			NewRequest: func() any { return &emailCodeRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*emailCodeRequest)
				res := s.EmailRegister(ctx, r.RequestID, r.Addr, r.CodeID, r.Code)
				return toRegisterResponse(res), nil
			},
		},
		{
			Name:       "EmailLogin",
			NewRequest: func() any { return &emailCodeRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*emailCodeRequest)
				res := s.EmailLogin(ctx, r.RequestID, r.Addr, r.CodeID, r.Code)
				return toLoginResponse(res), nil
			},
		},
		{
			Name:       "GetUserInfo",
			NewRequest: func() any { return &userInfoRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*userInfoRequest)
				res := s.GetUserInfo(ctx, r.RequestID, r.UserID)
				resp := userInfoResponse{Success: res.Success, RequestID: res.RequestID, ErrMsg: res.ErrMsg}
				if res.User != nil {
					resp.User = *res.User
				}
				return resp, nil
			},
		},
		{
			Name:       "GetMultiUserInfo",
			NewRequest: func() any { return &multiUserInfoRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*multiUserInfoRequest)
				res := s.GetMultiUserInfo(ctx, r.RequestID, r.UserIDs)
				return multiUserInfoResponse{
					Success: res.Success, RequestID: res.RequestID, ErrMsg: res.ErrMsg, Users: res.Users,
				}, nil
			},
		},
		{
			Name:       "SetUserAvatar",
			NewRequest: func() any { return &setAvatarRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*setAvatarRequest)
				res := s.SetUserAvatar(ctx, r.RequestID, r.SessionID, r.UserID, r.FileName, r.Content, r.Size)
				return toRegisterResponse(res), nil
			},
		},
		{
			Name:       "SetUserNickname",
			NewRequest: func() any { return &setNicknameRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*setNicknameRequest)
				res := s.SetUserNickname(ctx, r.RequestID, r.SessionID, r.UserID, r.Nickname)
				return toRegisterResponse(res), nil
			},
		},
		{
			Name:       "SetUserDescription",
			NewRequest: func() any { return &setDescriptionRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*setDescriptionRequest)
				res := s.SetUserDescription(ctx, r.RequestID, r.SessionID, r.UserID, r.Description)
				return toRegisterResponse(res), nil
			},
		},
		{
			Name:       "SetUserEmail",
			NewRequest: func() any { return &setEmailRequest{} },
			Handler: func(ctx context.Context, req any) (any, error) {
				r := req.(*setEmailRequest)
				res := s.SetUserEmail(ctx, r.RequestID, r.SessionID, r.UserID, r.Addr, r.CodeID, r.Code)
				return toRegisterResponse(res), nil
			},
		},
	})
}
