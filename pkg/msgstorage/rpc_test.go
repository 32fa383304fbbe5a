package msgstorage

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/littleblus/breezechat/pkg/rpc"
	"github.com/littleblus/breezechat/pkg/searchindex"
	"github.com/littleblus/breezechat/pkg/types"
)

func dialTestServer(t *testing.T, desc grpc.ServiceDesc) *grpc.ClientConn {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	srv.RegisterService(&desc, nil)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestMsgStorageServiceRPCRoundTrip confirms ServiceDesc dispatches
// MsgSearch over a real gRPC connection the same way the direct Service
// call in msgstorage_test.go exercises it (scenario S5).
func TestMsgStorageServiceRPCRoundTrip(t *testing.T) {
	svc, _, searcher, _, users := newTestService()
	users.byID["uA"] = types.UserInfo{UserID: "uA", Nickname: "alice"}
	searcher.hits = []searchindex.Hit{
		{ID: "m1", Source: map[string]any{
			"user_id": "uA", "message_id": "m1", "chat_session_id": "s1",
			"create_time": float64(time.Now().Unix()), "content": "吃的盖浇饭！",
		}},
	}

	conn := dialTestServer(t, svc.ServiceDesc())

	var resp queryResponse
	err := rpc.Call(context.Background(), conn, "/MsgStorageService/MsgSearch", &searchRequest{
		RequestID: "r1", ChatSessionID: "s1", SearchKey: "盖浇",
	}, &resp)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.MsgList, 1)
	require.Equal(t, "m1", resp.MsgList[0].MessageID)
}
