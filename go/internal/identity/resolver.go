// Package identity turns an authenticated user id into the session the bidding gate checks.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/rs/zerolog/log"
)

var ErrInvalidUserID = errors.New("invalid user id")

// ProfileReader loads profiles
type ProfileReader interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// SessionCache is optional; a nil cache disables caching.
type SessionCache interface {
	Get(ctx context.Context, userID string) (models.SessionContext, bool, error)
	Set(ctx context.Context, userID string, session models.SessionContext) error
	Invalidate(ctx context.Context, userID string) error
}

// Resolver resolves sessions for callers that already passed authentication.
type Resolver struct {
	profiles ProfileReader
	cache    SessionCache
}

func NewResolver(profiles ProfileReader, cache SessionCache) *Resolver {
	return &Resolver{
		profiles: profiles,
		cache:    cache,
	}
}

// Resolve builds the session for userID. A missing or unreadable profile
// yields an authenticated participant with an incomplete profile.
// Only complete sessions are cached, so completing a profile takes effect on the next call.
func (r *Resolver) Resolve(ctx context.Context, userID string) (models.SessionContext, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return models.Anonymous, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	key := id.String()

	if r.cache != nil {
		session, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("user_id", key).Msg("session cache read failed")
		} else if ok {
			return session, nil
		}
	}

	profile, err := r.profiles.GetProfile(ctx, id)
	if err != nil {
		session := models.SessionContext{
			Authenticated: true,
			Identity:      key,
			Role:          models.RoleParticipant,
		}
		if !errors.Is(err, ErrProfileNotFound) {
			log.Error().Err(err).Str("user_id", key).Msg("failed to load profile - treating as participant")
		}
		return session, nil
	}

	session := sessionFromProfile(profile)
	r.store(ctx, key, session)
	return session, nil
}

// Invalidate drops the cached session of userID, e.g. after its profile changed.
func (r *Resolver) Invalidate(ctx context.Context, userID string) error {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Invalidate(ctx, id.String()); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

func (r *Resolver) store(ctx context.Context, key string, session models.SessionContext) {
	if r.cache == nil || !session.ProfileComplete {
		return
	}
	if err := r.cache.Set(ctx, key, session); err != nil {
		log.Warn().Err(err).Str("user_id", key).Msg("session cache write failed")
	}
}

func sessionFromProfile(p *models.Profile) models.SessionContext {
	identity := p.Email
	if identity == "" {
		identity = p.ID.String()
	}
	role := p.Role
	if role == "" {
		role = models.RoleParticipant
	}
	return models.SessionContext{
		Authenticated:   true,
		ProfileComplete: p.IsComplete(),
		Identity:        identity,
		Role:            role,
	}
}
