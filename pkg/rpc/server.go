package rpc

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/security"
)

// Server wraps a *grpc.Server hosting one or more hand-built ServiceDescs,
// the same listen/serve/graceful-stop shape the teacher's pkg/api.Server
// uses.
type Server struct {
	grpc *grpc.Server
}

// NewServer builds a plaintext Server with every desc registered.
func NewServer(descs ...grpc.ServiceDesc) *Server {
	s := grpc.NewServer()
	for i := range descs {
		s.RegisterService(&descs[i], nil)
	}
	return &Server{grpc: s}
}

// NewServerWithTLS builds a Server that requires TLS on every connection,
// loading the process's node certificate from certDir (node.crt/node.key,
// see pkg/security.LoadCertFromFile). No peer certificate is required;
// BreezeChat's fabric authenticates services via the coordination store,
// not mutual TLS.
func NewServerWithTLS(certDir string, descs ...grpc.ServiceDesc) (*Server, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rpc: load server cert: %w", err)
	}
	tlsCfg := security.ServerTLSConfig(cert, nil)
	s := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsCfg)))
	for i := range descs {
		s.RegisterService(&descs[i], nil)
	}
	return &Server{grpc: s}, nil
}

// Serve listens on addr and blocks serving RPCs until the server is
// stopped or a listen error occurs.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	log.Logger.Info().Str("addr", addr).Msg("rpc server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the server, letting in-flight RPCs complete.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
