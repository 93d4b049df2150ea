// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mealmind/mealmind/pkg/errutil"
)

var tracer = otel.Tracer("mealmind/auth")

// DefaultRefreshTTL is the refresh session lifetime (14 days).
const DefaultRefreshTTL = 20160 * time.Minute

// reuseRevokeTimeout bounds lineage revocation after reuse detection. The
// revocation runs detached from the caller's cancellation.
const reuseRevokeTimeout = 5 * time.Second

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// TokenCodec issues and verifies access tokens.
type TokenCodec interface {
	Issue(userID ulid.ULID, now time.Time) (token string, expiresAt time.Time, err error)
	Verify(token string, now time.Time) (ulid.ULID, error)
}

// Result is the outcome of a successful Register, Login or Refresh.
type Result struct {
	User             *User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service provides authentication operations. It holds no mutable state of
// its own and is safe for concurrent use.
type Service struct {
	users      UserRepository
	sessions   SessionStore
	hasher     PasswordHasher
	tokens     TokenCodec
	logger     *slog.Logger
	refreshTTL time.Duration
	clock      func() time.Time

	attempts LoginAttemptStore
	throttle ThrottleConfig
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRefreshTTL sets the refresh session lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.refreshTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLoginThrottle enables login throttling backed by store. A nil store or a
// non-positive threshold leaves throttling off.
func WithLoginThrottle(store LoginAttemptStore, cfg ThrottleConfig) ServiceOption {
	return func(s *Service) {
		if store == nil || cfg.LockoutThreshold <= 0 {
			s.attempts = nil
			return
		}
		s.attempts = store
		s.throttle = cfg
	}
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions SessionStore, hasher PasswordHasher, tokens TokenCodec, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token codec is required")
	}

	s := &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		logger:     slog.Default(),
		refreshTTL: DefaultRefreshTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.refreshTTL <= 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").
			With("refresh_ttl", s.refreshTTL.String()).
			Errorf("refresh TTL must be positive")
	}
	if s.attempts != nil && s.throttle.LockoutDuration <= 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").
			With("lockout_duration", s.throttle.LockoutDuration.String()).
			Errorf("lockout duration must be positive")
	}
	return s, nil
}

// Register creates an account and signs the new user in. The returned Result
// carries a fresh token pair, exactly as Login would.
func (s *Service) Register(ctx context.Context, email, password string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	res, err := s.register(ctx, email, password)
	finish(span, "register", err)
	return res, err
}

func (s *Service) register(ctx context.Context, email, password string) (*Result, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, conflictError(email)
	case !errors.Is(err, ErrNotFound):
		return nil, storeUnavailable("get user by email", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	user, err := NewUser(email, hash, s.clock())
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, conflictError(email)
		}
		return nil, storeUnavailable("create user", err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())

	return s.startLineage(ctx, user)
}

// Login authenticates by email and password and starts a new session lineage.
// An unknown email and a wrong password produce the same error after the same
// amount of hashing work.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	res, err := s.login(ctx, email, password)
	finish(span, "login", err)
	return res, err
}

func (s *Service) login(ctx context.Context, email, password string) (*Result, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, validationError("email", "email is required")
	}
	if password == "" {
		return nil, validationError("password", "password is required")
	}

	if err := s.checkThrottle(ctx, email); err != nil {
		return nil, err
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
	default:
		return nil, storeUnavailable("get user by email", lookupErr)
	}

	// Always verify, even for unknown users.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && user != nil {
		errutil.LogErrorContext(ctx, s.logger, "stored password hash is unreadable",
			oops.With("user_id", user.ID.String()).Wrap(verifyErr))
	}
	if user == nil || verifyErr != nil || !valid {
		s.recordFailure(ctx, email)
		return nil, invalidCredentials()
	}

	s.resetFailures(ctx, email)
	return s.startLineage(ctx, user)
}

// checkThrottle rejects a login for an email that is locked out or still
// inside its progressive delay. It runs before any password work.
func (s *Service) checkThrottle(ctx context.Context, email string) error {
	if s.attempts == nil {
		return nil
	}
	attempts, err := s.attempts.Get(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeUnavailable("get login attempts", err)
	}
	if result := s.throttle.Check(attempts, s.clock()); !result.Allowed() {
		return Throttled(result)
	}
	return nil
}

// recordFailure counts a failed login. Storage errors are logged, not
// returned: the caller still sees invalid credentials.
func (s *Service) recordFailure(ctx context.Context, email string) {
	if s.attempts == nil {
		return
	}
	now := s.clock()
	attempts, err := s.attempts.RecordFailure(ctx, email, now, s.throttle)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to record login failure", err)
		return
	}
	if attempts.LockedUntil != nil && attempts.Failures == s.throttle.LockoutThreshold {
		LoginLockouts.Inc()
		s.logger.WarnContext(ctx, "login locked out after repeated failures",
			"email", email,
			"failures", attempts.Failures,
			"locked_until", attempts.LockedUntil.UTC())
	}
}

func (s *Service) resetFailures(ctx context.Context, email string) {
	if s.attempts == nil {
		return
	}
	if err := s.attempts.Reset(ctx, email); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to reset login failures", err)
	}
}

// Refresh exchanges a refresh token for a new token pair. The presented token
// is consumed. Presenting a token that was already rotated or revoked is
// treated as theft: the whole lineage is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "auth.Refresh")
	res, err := s.refresh(ctx, refreshToken)
	finish(span, "refresh", err)
	return res, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*Result, error) {
	if refreshToken == "" {
		return nil, invalidSession(CodeInvalidSession, "empty refresh token")
	}
	now := s.clock()

	current, err := s.sessions.GetByTokenHash(ctx, HashRefreshToken(refreshToken))
	if errors.Is(err, ErrNotFound) {
		return nil, invalidSession(CodeInvalidSession, "unknown refresh token")
	}
	if err != nil {
		return nil, storeUnavailable("get refresh session", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("auth.user_id", current.UserID.String()),
		attribute.String("auth.lineage_id", current.LineageID.String()),
	)

	switch state := current.StateAt(now); state {
	case SessionActive:
	case SessionExpired:
		return nil, invalidSession(CodeInvalidSession, "refresh session expired")
	default:
		return nil, s.rejectReuse(ctx, current, state.String(), now)
	}

	user, err := s.users.GetByID(ctx, current.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, invalidSession(CodeInvalidSession, "session owner no longer exists")
	}
	if err != nil {
		return nil, storeUnavailable("get user by id", err)
	}

	// Sign before rotating so a signing failure cannot burn the session.
	access, accessExp, err := s.tokens.Issue(user.ID, now)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("operation", "issue access token").Wrap(err)
	}
	refresh, hash, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	next, err := NewRefreshSession(user.ID, current.LineageID, hash, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Rotate(ctx, current.ID, next, now); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			return nil, s.rejectReuse(ctx, current, "concurrent rotation", now)
		}
		return nil, storeUnavailable("rotate refresh session", err)
	}
	s.logger.DebugContext(ctx, "refresh session rotated",
		"user_id", user.ID.String(),
		"lineage_id", current.LineageID.String(),
		"from", current.ID.String(),
		"to", next.ID.String())

	return &Result{
		User:             user,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// rejectReuse revokes the lineage of a session whose token was presented
// while no longer active, and returns the error for the caller.
func (s *Service) rejectReuse(ctx context.Context, session *RefreshSession, reason string, now time.Time) error {
	revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reuseRevokeTimeout)
	defer cancel()

	revoked, err := s.sessions.RevokeLineage(revokeCtx, session.LineageID, now)
	if err != nil {
		return storeUnavailable("revoke session lineage", err)
	}
	recordRevoked("reuse", revoked)
	s.logger.WarnContext(ctx, "refresh token reuse detected, lineage revoked",
		"user_id", session.UserID.String(),
		"lineage_id", session.LineageID.String(),
		"session_id", session.ID.String(),
		"reason", reason,
		"revoked", revoked)
	return invalidSession(CodeSessionReused, reason)
}

// Validate resolves an access token to its user ID. It never touches the
// session store, so a valid token stays valid until it expires.
func (s *Service) Validate(ctx context.Context, accessToken string) (ulid.ULID, error) {
	_, span := tracer.Start(ctx, "auth.Validate")
	userID, err := s.tokens.Verify(accessToken, s.clock())
	if err != nil {
		err = invalidSession(CodeInvalidSession, err.Error())
	}
	finish(span, "validate", err)
	return userID, err
}

// Logout revokes the session behind a refresh token. Unknown, expired and
// already terminal tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := tracer.Start(ctx, "auth.Logout")
	err := s.logout(ctx, refreshToken)
	finish(span, "logout", err)
	return err
}

func (s *Service) logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashRefreshToken(refreshToken))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeUnavailable("get refresh session", err)
	}
	if session.Revoked {
		return nil
	}

	if err := s.sessions.Revoke(ctx, session.ID, s.clock()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return storeUnavailable("revoke refresh session", err)
	}
	recordRevoked("logout", 1)
	s.logger.InfoContext(ctx, "refresh session revoked",
		"user_id", session.UserID.String(),
		"session_id", session.ID.String())
	return nil
}

// LogoutAll revokes every refresh session of a user and returns how many
// sessions were revoked.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	ctx, span := tracer.Start(ctx, "auth.LogoutAll")
	n, err := s.sessions.RevokeAllForUser(ctx, userID, s.clock())
	if err != nil {
		err = storeUnavailable("revoke all sessions", err)
	} else {
		recordRevoked("logout_all", n)
		s.logger.InfoContext(ctx, "all refresh sessions revoked", "user_id", userID.String(), "revoked", n)
	}
	finish(span, "logout_all", err)
	return n, err
}

// User returns the account for an authenticated user ID.
func (s *Service) User(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, invalidSession(CodeInvalidSession, "user no longer exists")
	}
	if err != nil {
		return nil, storeUnavailable("get user by id", err)
	}
	return user, nil
}

// startLineage issues an access token and the first session of a new lineage.
func (s *Service) startLineage(ctx context.Context, user *User) (*Result, error) {
	now := s.clock()

	access, accessExp, err := s.tokens.Issue(user.ID, now)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("operation", "issue access token").Wrap(err)
	}
	refresh, hash, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	session, err := NewRefreshSession(user.ID, ulid.ULID{}, hash, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, storeUnavailable("create refresh session", err)
	}

	return &Result{
		User:             user,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

// Outcome classifies a service error for metrics and transport mapping.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrValidation):
		return OutcomeInvalidInput
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, ErrConflict):
		return OutcomeConflict
	case errors.Is(err, ErrThrottled):
		return OutcomeThrottled
	case errors.Is(err, ErrInvalidSession):
		if errutil.Code(err) == CodeSessionReused {
			return OutcomeReuseDetected
		}
		return OutcomeInvalidSession
	default:
		return OutcomeError
	}
}

func finish(span trace.Span, operation string, err error) {
	outcome := Outcome(err)
	recordOperation(operation, outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, errutil.Code(err))
	}
	span.End()
}
