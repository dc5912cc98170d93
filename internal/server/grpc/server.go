// Package grpc exposes the session service over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
)

type sessionSvc interface {
	Authenticate(ctx context.Context, username, password string) (*auth.IssuedToken, error)
	Introspect(ctx context.Context, token string) (services.IntrospectResult, error)
	Authorize(ctx context.Context, token string) (auth.Principal, error)
	Refresh(ctx context.Context, token string) (*auth.IssuedToken, error)
	Logout(ctx context.Context, token string) error
	AuthenticateIDToken(ctx context.Context, rawIDToken string) (*auth.IssuedToken, error)
	OutboundAuthenticate(ctx context.Context, code string) (*auth.IssuedToken, error)
}

type accountSvc interface {
	Register(ctx context.Context, username, email, password string) (*models.Account, error)
}

type GRPCServer struct {
	address        string
	sessions       sessionSvc
	accounts       accountSvc
	logger         logging.Logger
	tracerProvider trace.TracerProvider
}

// NewGRPCServer builds the server. A nil tracer provider disables tracing.
func NewGRPCServer(address string, l logging.Logger, sessions sessionSvc, accounts accountSvc, tp trace.TracerProvider) *GRPCServer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &GRPCServer{
		address:        address,
		logger:         l.With("module", "grpc_server"),
		sessions:       sessions,
		accounts:       accounts,
		tracerProvider: tp,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(s.tracerProvider))),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
	)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
