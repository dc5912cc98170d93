package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/observe"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FederatedSource is recorded when federated claims name no provider.
const FederatedSource = "federated"

// CodeExchanger redeems an OAuth2 authorization code for verified claims.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*federation.Claims, error)
}

// IntrospectResult answers "is this token valid right now". Principal is
// only set when Valid is true.
type IntrospectResult struct {
	Valid     bool
	Principal auth.Principal
}

// SessionDeps wires a SessionService. Verifier and Exchanger are optional;
// without them the federated entry points reject every call.
type SessionDeps struct {
	DB          *sql.DB
	Repos       repomanager.RepositoryManager
	Codec       *auth.Codec
	Credentials *CredentialVerifier
	Provisioner *Provisioner
	Ledger      *Ledger
	Verifier    federation.Verifier
	Exchanger   CodeExchanger
	Logger      logging.Logger
	Tracer      trace.Tracer

	TokenTTL time.Duration
	// StrictRefreshRotation makes a refresh of an already revoked token fail
	// with common.ErrTokenAlreadyUsed inside the rotation transaction, so
	// concurrent refreshes of one token yield exactly one new token.
	StrictRefreshRotation bool
}

// SessionService issues, introspects, rotates and revokes session tokens. A
// token is valid iff its MAC checks out, it has not expired and its jti is
// not in the ledger.
//
// Every authentication failure leaves this type as common.ErrorUnauthorized
// and every store failure as common.ErrorInternal; the specific cause is
// only logged.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	credentials *CredentialVerifier
	provisioner *Provisioner
	ledger      *Ledger
	verifier    federation.Verifier
	exchanger   CodeExchanger
	log         logging.Logger
	tracer      trace.Tracer
	ttl         time.Duration
	strict      bool
}

func NewSessionService(d SessionDeps) *SessionService {
	tracer := d.Tracer
	if tracer == nil {
		tracer = observe.NoopTracer()
	}
	return &SessionService{
		db:          d.DB,
		repomanager: d.Repos,
		codec:       d.Codec,
		credentials: d.Credentials,
		provisioner: d.Provisioner,
		ledger:      d.Ledger,
		verifier:    d.Verifier,
		exchanger:   d.Exchanger,
		log:         d.Logger.With("module", "sessions"),
		tracer:      tracer,
		ttl:         d.TokenTTL,
		strict:      d.StrictRefreshRotation,
	}
}

// Authenticate checks a local username and password and issues a token.
func (s *SessionService) Authenticate(ctx context.Context, username, password string) (_ *auth.IssuedToken, err error) {
	ctx, span := s.tracer.Start(ctx, "sessions.Authenticate")
	defer func() { observe.EndSpan(span, err) }()

	account, err := s.credentials.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, common.ErrorInternal) {
			s.log.Error(ctx, "credential check failed", "error", err)
			return nil, common.ErrorInternal
		}
		s.log.Debug(ctx, "authentication rejected", "reason", err)
		return nil, common.ErrorUnauthorized
	}

	return s.issue(ctx, span, account.ID, func() (*auth.IssuedToken, error) {
		return s.codec.Issue(account, s.ttl)
	})
}

// Introspect never fails on a bad token; it answers Valid=false. The error
// is reserved for ledger failures, which never produce Valid=true.
func (s *SessionService) Introspect(ctx context.Context, token string) (_ IntrospectResult, err error) {
	ctx, span := s.tracer.Start(ctx, "sessions.Introspect")
	defer func() { observe.EndSpan(span, err) }()

	claims, verr := s.codec.Verify(token)
	if verr != nil {
		s.log.Debug(ctx, "introspect: token rejected", "reason", verr)
		return IntrospectResult{}, nil
	}

	revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.log.Error(ctx, "introspect: ledger read failed", "error", err)
		return IntrospectResult{}, common.ErrorInternal
	}
	if revoked {
		s.log.Debug(ctx, "introspect: token rejected", "reason", common.ErrTokenRevoked)
		return IntrospectResult{}, nil
	}

	return IntrospectResult{Valid: true, Principal: auth.PrincipalFromClaims(claims)}, nil
}

// Authorize introspects token and returns its Principal, or
// common.ErrorUnauthorized when it is not valid.
func (s *SessionService) Authorize(ctx context.Context, token string) (auth.Principal, error) {
	res, err := s.Introspect(ctx, token)
	if err != nil {
		return auth.Principal{}, err
	}
	if !res.Valid {
		return auth.Principal{}, common.ErrorUnauthorized
	}
	return res.Principal, nil
}

// Refresh rotates token: in one transaction the old jti is revoked, the
// account is re-read by subject and a replacement is issued. If the account
// no longer exists the revoke still commits and the call fails.
func (s *SessionService) Refresh(ctx context.Context, token string) (_ *auth.IssuedToken, err error) {
	ctx, span := s.tracer.Start(ctx, "sessions.Refresh")
	defer func() { observe.EndSpan(span, err) }()

	claims, err := s.codec.Verify(token)
	if err != nil {
		s.log.Debug(ctx, "refresh rejected", "reason", err)
		return nil, common.ErrorUnauthorized
	}
	span.SetAttributes(attribute.String("session.jti", claims.ID))

	if !s.strict {
		revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.log.Error(ctx, "refresh: ledger read failed", "error", err)
			return nil, common.ErrorInternal
		}
		if revoked {
			s.log.Debug(ctx, "refresh rejected", "reason", common.ErrTokenRevoked)
			return nil, common.ErrorUnauthorized
		}
	}

	source := claims.Source
	if source == "" {
		source = auth.SourceLocal
	}

	var (
		issued   *auth.IssuedToken
		vanished bool
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		inserted, err := s.repomanager.RevokedTokens(tx).Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
		if err != nil {
			return err
		}
		if !inserted && s.strict {
			return common.ErrTokenAlreadyUsed
		}

		account, err := s.repomanager.Accounts(tx).GetByUsername(ctx, claims.Subject)
		if errors.Is(err, common.ErrorNotFound) {
			vanished = true
			return nil
		}
		if err != nil {
			return err
		}

		issued, err = s.codec.Issue(account, s.ttl, auth.WithSource(source))
		return err
	})
	switch {
	case errors.Is(err, common.ErrTokenAlreadyUsed):
		args := []any{"jti", claims.ID, "subject", claims.Subject}
		if entry, gerr := s.ledger.Get(ctx, claims.ID); gerr == nil {
			args = append(args, "revoked_at", entry.RevokedAt)
		}
		s.log.Warn(ctx, "refresh token replayed", args...)
		return nil, common.ErrorUnauthorized
	case err != nil:
		s.log.Error(ctx, "refresh failed", "error", err)
		return nil, common.ErrorInternal
	case vanished:
		s.log.Info(ctx, "refresh rejected", "reason", common.ErrAccountVanished, "subject", claims.Subject)
		return nil, common.ErrorUnauthorized
	}

	s.log.Info(ctx, "session refreshed", "account_id", issued.Claims.UserID)
	return issued, nil
}

// Logout revokes token. Logging out an already revoked token succeeds.
func (s *SessionService) Logout(ctx context.Context, token string) (err error) {
	ctx, span := s.tracer.Start(ctx, "sessions.Logout")
	defer func() { observe.EndSpan(span, err) }()

	claims, err := s.codec.Verify(token)
	if err != nil {
		s.log.Debug(ctx, "logout rejected", "reason", err)
		return common.ErrorUnauthorized
	}

	inserted, err := s.ledger.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		s.log.Error(ctx, "logout: ledger write failed", "error", err)
		return common.ErrorInternal
	}
	if !inserted {
		s.log.Debug(ctx, "logout of already revoked token", "jti", claims.ID)
	}
	return nil
}

// FederatedAuthenticate issues a token for the local account behind verified
// federated claims, provisioning it on first login.
func (s *SessionService) FederatedAuthenticate(ctx context.Context, claims federation.Claims) (_ *auth.IssuedToken, err error) {
	ctx, span := s.tracer.Start(ctx, "sessions.FederatedAuthenticate")
	defer func() { observe.EndSpan(span, err) }()

	source := claims.Provider
	if source == "" {
		source = FederatedSource
	}
	span.SetAttributes(attribute.String("session.source", source))

	account, err := s.provisioner.Resolve(ctx, claims)
	if err != nil {
		if errors.Is(err, common.ErrorInternal) {
			s.log.Error(ctx, "provisioning failed", "error", err)
			return nil, common.ErrorInternal
		}
		s.log.Debug(ctx, "federated login rejected", "reason", err)
		return nil, common.ErrorUnauthorized
	}

	return s.issue(ctx, span, account.ID, func() (*auth.IssuedToken, error) {
		return s.codec.Issue(account, s.ttl, auth.WithSource(source))
	})
}

// AuthenticateIDToken verifies a provider ID token and continues as
// FederatedAuthenticate.
func (s *SessionService) AuthenticateIDToken(ctx context.Context, rawIDToken string) (*auth.IssuedToken, error) {
	if s.verifier == nil {
		s.log.Warn(ctx, "federated login attempted but no verifier is configured")
		return nil, common.ErrorUnauthorized
	}
	claims, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		s.log.Debug(ctx, "id token rejected", "reason", err)
		return nil, common.ErrorUnauthorized
	}
	return s.FederatedAuthenticate(ctx, *claims)
}

// OutboundAuthenticate redeems an authorization code at the provider and
// continues as FederatedAuthenticate.
func (s *SessionService) OutboundAuthenticate(ctx context.Context, code string) (*auth.IssuedToken, error) {
	if s.exchanger == nil {
		s.log.Warn(ctx, "outbound login attempted but no exchanger is configured")
		return nil, common.ErrorUnauthorized
	}
	claims, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		s.log.Debug(ctx, "code exchange rejected", "reason", err)
		return nil, common.ErrorUnauthorized
	}
	return s.FederatedAuthenticate(ctx, *claims)
}

func (s *SessionService) issue(ctx context.Context, span trace.Span, accountID int64, mint func() (*auth.IssuedToken, error)) (*auth.IssuedToken, error) {
	issued, err := mint()
	if err != nil {
		s.log.Error(ctx, "token issue failed", "error", err)
		return nil, common.ErrorInternal
	}
	span.SetAttributes(attribute.Int64("session.account_id", accountID))
	s.log.Info(ctx, "session issued", "account_id", accountID, "source", issued.Claims.Source)
	return issued, nil
}
