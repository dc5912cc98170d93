package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Session is an issued token as seen by a client.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Identity is the WhoAmI answer.
type Identity struct {
	AccountID int64
	Username  string
	Scopes    []string
	Source    string
}

// Client is a typed wrapper over the SessionService methods.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Register(ctx context.Context, username, email, password string) (int64, error) {
	out, err := c.call(ctx, MethodRegister, map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return 0, err
	}
	return int64(out.GetFields()["account_id"].GetNumberValue()), nil
}

func (c *Client) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	return c.session(c.call(ctx, MethodAuthenticate, map[string]string{
		"username": username,
		"password": password,
	}))
}

func (c *Client) Introspect(ctx context.Context, token string) (bool, error) {
	out, err := c.call(ctx, MethodIntrospect, map[string]string{"token": token})
	if err != nil {
		return false, err
	}
	return out.GetFields()["valid"].GetBoolValue(), nil
}

func (c *Client) Refresh(ctx context.Context, token string) (*Session, error) {
	return c.session(c.call(ctx, MethodRefresh, map[string]string{"token": token}))
}

func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.call(ctx, MethodLogout, map[string]string{"token": token})
	return err
}

func (c *Client) FederatedAuthenticate(ctx context.Context, idToken string) (*Session, error) {
	return c.session(c.call(ctx, MethodFederatedAuthenticate, map[string]string{"id_token": idToken}))
}

func (c *Client) OutboundAuthenticate(ctx context.Context, code string) (*Session, error) {
	return c.session(c.call(ctx, MethodOutboundAuthenticate, map[string]string{"code": code}))
}

// WhoAmI sends token as access_token metadata.
func (c *Client) WhoAmI(ctx context.Context, token string) (*Identity, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, token)
	out, err := c.call(ctx, MethodWhoAmI, nil)
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	return &Identity{
		AccountID: int64(f["account_id"].GetNumberValue()),
		Username:  f["username"].GetStringValue(),
		Scopes:    strings.Fields(f["scope"].GetStringValue()),
		Source:    f["source"].GetStringValue(),
	}, nil
}

func (c *Client) call(ctx context.Context, method string, in map[string]string) (*structpb.Struct, error) {
	req := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(in))}
	for k, v := range in {
		req.Fields[k] = structpb.NewStringValue(v)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) session(out *structpb.Struct, err error) (*Session, error) {
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	expiresAt, err := time.Parse(time.RFC3339, f["expires_at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("bad expires_at: %w", err)
	}
	return &Session{Token: f["token"].GetStringValue(), ExpiresAt: expiresAt}, nil
}
