package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	account, err := s.accounts.Register(ctx, field(req, "username"), field(req, "email"), field(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "Registered", "account_id", account.ID)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"account_id": structpb.NewNumberValue(float64(account.ID)),
	}}, nil
}

func (s *GRPCServer) Authenticate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return tokenResponse(s.sessions.Authenticate(ctx, field(req, "username"), field(req, "password")))
}

func (s *GRPCServer) Introspect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.sessions.Introspect(ctx, field(req, "token"))
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"valid": structpb.NewBoolValue(res.Valid),
	}}, nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return tokenResponse(s.sessions.Refresh(ctx, field(req, "token")))
}

func (s *GRPCServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.sessions.Logout(ctx, field(req, "token")); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) FederatedAuthenticate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return tokenResponse(s.sessions.AuthenticateIDToken(ctx, field(req, "id_token")))
}

func (s *GRPCServer) OutboundAuthenticate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return tokenResponse(s.sessions.OutboundAuthenticate(ctx, field(req, "code")))
}

// WhoAmI describes the caller. The access token interceptor has already
// placed the Principal in ctx.
func (s *GRPCServer) WhoAmI(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"account_id": structpb.NewNumberValue(float64(p.AccountID)),
		"username":   structpb.NewStringValue(p.Username),
		"scope":      structpb.NewStringValue(strings.Join(p.Scopes, " ")),
		"source":     structpb.NewStringValue(p.Source),
	}}, nil
}

func tokenResponse(issued *auth.IssuedToken, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"token":      structpb.NewStringValue(issued.Token),
		"expires_at": structpb.NewStringValue(issued.ExpiresAt.UTC().Format(time.RFC3339)),
	}}, nil
}

func field(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

// toStatus maps service errors onto gRPC codes. Only validation errors
// carry their message to the caller.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
