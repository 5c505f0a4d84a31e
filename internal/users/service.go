package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultProvider = "default"
	// profileRefreshInterval bounds how often a cached identity touches its row
	// when the session profile has not changed.
	profileRefreshInterval = 5 * time.Minute
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrIdentityNotFound indicates no identity row exists for the user id.
	ErrIdentityNotFound = errors.New("users: identity not found")
)

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages canonical user identifiers and provider-specific
// identities. Resolved identities are cached for the life of the process.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveCanonicalUserID returns the canonical user id for the session
// claims, creating the identity row on first sight. The stored profile and
// last_seen_at are refreshed when the claims carry a changed profile, and at
// most once per profileRefreshInterval otherwise.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	now := s.now().UTC()
	cacheKey := identityKey(provider, subject)
	if cached, ok := s.cache.Load(cacheKey); ok {
		if entry, ok := cached.(cachedIdentity); ok {
			if entry.profileMatches(claims) && now.Sub(entry.refreshedAt) < profileRefreshInterval {
				return entry.identity.UserID, nil
			}
			s.cache.Store(cacheKey, newCachedIdentity(s.refreshProfile(s.db.WithContext(ctx), entry.identity, claims, now), now))
			return entry.identity.UserID, nil
		}
	}

	db := s.db.WithContext(ctx)
	var identity Identity
	err := db.Where("provider = ? AND subject = ?", provider, subject).First(&identity).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			UserID:      subject,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			AvatarURL:   normalize(claims.UserAvatarURL),
			LastSeenAt:  now,
		}
		if err := db.Create(&identity).Error; err != nil {
			return "", fmt.Errorf("users: create identity: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("users: load identity: %w", err)
	default:
		identity = s.refreshProfile(db, identity, claims, now)
	}

	s.cache.Store(cacheKey, newCachedIdentity(identity, now))
	return identity.UserID, nil
}

// Lookup returns the most recently seen identity for a canonical user id.
func (s *Service) Lookup(ctx context.Context, userID string) (Identity, error) {
	var identity Identity
	err := s.db.WithContext(ctx).
		Where("user_id = ?", normalize(userID)).
		Order("last_seen_at DESC").
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrIdentityNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("users: lookup identity: %w", err)
	}
	return identity, nil
}

// refreshProfile stores changed profile fields and the sighting time,
// returning the identity as it should now read. Blank claim fields never
// clear stored values.
func (s *Service) refreshProfile(db *gorm.DB, identity Identity, claims auth.SessionClaims, now time.Time) Identity {
	updates := map[string]any{"last_seen_at": now}
	refreshed := identity
	refreshed.LastSeenAt = now
	if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
		updates["user_email"] = email
		refreshed.Email = email
	}
	if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
		updates["user_display_name"] = display
		refreshed.DisplayName = display
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != identity.AvatarURL {
		updates["user_avatar_url"] = avatar
		refreshed.AvatarURL = avatar
	}
	if err := db.Model(&Identity{}).
		Where("provider = ? AND subject = ?", identity.Provider, identity.Subject).
		Updates(updates).Error; err != nil {
		s.logger.Warn("identity profile refresh failed",
			zap.String("provider", identity.Provider),
			zap.String("subject", identity.Subject),
			zap.Error(err))
		return identity
	}
	return refreshed
}

type cachedIdentity struct {
	identity    Identity
	refreshedAt time.Time
}

func newCachedIdentity(identity Identity, refreshedAt time.Time) cachedIdentity {
	return cachedIdentity{identity: identity, refreshedAt: refreshedAt}
}

// profileMatches reports whether the claims carry nothing new for the
// cached profile.
func (c cachedIdentity) profileMatches(claims auth.SessionClaims) bool {
	fields := []struct{ claimed, stored string }{
		{normalize(claims.UserEmail), c.identity.Email},
		{normalize(claims.UserDisplayName), c.identity.DisplayName},
		{normalize(claims.UserAvatarURL), c.identity.AvatarURL},
	}
	for _, field := range fields {
		if field.claimed != "" && field.claimed != field.stored {
			return false
		}
	}
	return true
}

// deriveProviderSubject splits a "provider:subject" user id claim, falling
// back to the registered subject and then the email.
func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	if raw := normalize(claims.UserID); raw != "" {
		if head, tail, found := strings.Cut(raw, ":"); found && normalize(head) != "" && normalize(tail) != "" {
			provider = normalize(head)
			subject = normalize(tail)
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}
	return provider, subject
}
