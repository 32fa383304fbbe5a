package transmit

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/littleblus/breezechat/pkg/rpc"
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

// TestMsgTransmitServiceRPCRoundTrip confirms ServiceDesc dispatches
// GetTransmitTarget over a real gRPC connection the same way the direct
// Service call in transmit_test.go exercises it.
func TestMsgTransmitServiceRPCRoundTrip(t *testing.T) {
	users := &fakeUserClient{info: types.UserInfo{UserID: "uA", Nickname: "alice"}}
	sessions := &fakeSessionStore{members: map[string][]string{"s1": {"uA", "uB"}}}
	pub := &fakePublisher{ok: true}
	svc := &Service{Users: users, Sessions: sessions, Pub: pub, Exchange: "breezechat"}

	conn := dialTestServer(t, svc.ServiceDesc())

	var resp getTransmitTargetResponse
	err := rpc.Call(context.Background(), conn, "/MsgTransmitService/GetTransmitTarget", &getTransmitTargetRequest{
		RequestID:     "r1",
		UserID:        "uA",
		ChatSessionID: "s1",
		Message:       types.Message{Type: types.MessageTypeString, Content: "hi"},
	}, &resp)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.ElementsMatch(t, []string{"uA", "uB"}, resp.TargetIDList)
}
