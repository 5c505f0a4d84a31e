package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrMissingValidator = errors.New("session resolver: validator required")
	errEmptyCanonicalID = errors.New("session resolver: identity store returned empty user id")
)

// User is the authenticated caller of a request.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// IdentityStore maps validated claims onto a canonical user id.
type IdentityStore interface {
	ResolveCanonicalUserID(ctx context.Context, claims SessionClaims) (string, error)
}

type ResolverConfig struct {
	Validator  *SessionValidator
	Identities IdentityStore
	Logger     *zap.Logger
}

// Resolver turns a request's session cookie into a User.
type Resolver struct {
	validator  *SessionValidator
	identities IdentityStore
	logger     *zap.Logger
}

func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Validator == nil {
		return nil, ErrMissingValidator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		validator:  cfg.Validator,
		identities: cfg.Identities,
		logger:     logger,
	}, nil
}

// CurrentUser reports the authenticated user. Any failure yields ok=false;
// a missing or expired session is expected traffic and logged at info.
func (r *Resolver) CurrentUser(request *http.Request) (User, bool) {
	claims, err := r.validator.ValidateRequest(request)
	if err != nil {
		if errors.Is(err, ErrMissingSessionToken) || errors.Is(err, ErrExpiredSessionToken) {
			r.logger.Info("session not established", zap.Error(err))
		} else {
			r.logger.Warn("session rejected", zap.Error(err))
		}
		return User{}, false
	}

	userID := strings.TrimSpace(claims.UserID)
	if r.identities != nil {
		ctx := context.Background()
		if request != nil {
			ctx = request.Context()
		}
		canonical, resolveErr := r.identities.ResolveCanonicalUserID(ctx, claims)
		if resolveErr == nil && strings.TrimSpace(canonical) == "" {
			resolveErr = errEmptyCanonicalID
		}
		if resolveErr != nil {
			r.logger.Warn("identity resolution failed",
				zap.String("subject", claims.Subject),
				zap.Error(resolveErr))
			return User{}, false
		}
		userID = canonical
	}

	return User{
		ID:          userID,
		Email:       strings.TrimSpace(claims.UserEmail),
		DisplayName: strings.TrimSpace(claims.UserDisplayName),
		AvatarURL:   strings.TrimSpace(claims.UserAvatarURL),
		Roles:       claims.UserRoles,
	}, true
}
