package credstore

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nkiryanov/edps/internal/apperrors"
	"github.com/nkiryanov/edps/internal/models"
)

// Store persists credential in exactly one of two tiers
type Store struct {
	durable   Tier
	ephemeral Tier
}

func New(durable Tier, ephemeral Tier) (*Store, error) {
	if durable == nil || ephemeral == nil {
		return nil, errors.New("tiers must not be nil")
	}

	return &Store{durable: durable, ephemeral: ephemeral}, nil
}

// Save writes credential to the tier of the scope and clears the other one
// ScopeNone clears both
func (s *Store) Save(scope Scope, cred models.Credential) error {
	var target, other Tier
	switch scope {
	case ScopeDurable:
		target, other = s.durable, s.ephemeral
	case ScopeEphemeral:
		target, other = s.ephemeral, s.durable
	default:
		return s.Clear()
	}

	if err := clearTier(other); err != nil {
		return err
	}

	if err := target.Set(KeyToken, cred.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := target.Set(KeyTokenExpiry, formatExpiry(cred.ExpiresAt)); err != nil {
		return fmt.Errorf("save token expiry: %w", err)
	}

	return nil
}

// Load returns credential from the first tier holding both token and expiry. Durable is checked first
// Returns apperrors.ErrCredentialNotFound if no tier has it
func (s *Store) Load() (models.Credential, Scope, error) {
	for _, st := range s.ordered() {
		token, ok, err := st.tier.Get(KeyToken)
		if err != nil {
			return models.Credential{}, ScopeNone, fmt.Errorf("load %s token: %w", st.scope, err)
		}
		if !ok || token == "" {
			continue
		}

		expiry, ok, err := s.expiryFrom(st.tier)
		if err != nil {
			return models.Credential{}, ScopeNone, fmt.Errorf("load %s token expiry: %w", st.scope, err)
		}
		if !ok {
			continue
		}

		return models.Credential{Token: token, ExpiresAt: expiry}, st.scope, nil
	}

	return models.Credential{}, ScopeNone, apperrors.ErrCredentialNotFound
}

// Expiry returns persisted expiry from any tier, durable first
func (s *Store) Expiry() (time.Time, bool, error) {
	for _, st := range s.ordered() {
		expiry, ok, err := s.expiryFrom(st.tier)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("load %s token expiry: %w", st.scope, err)
		}
		if ok {
			return expiry, true, nil
		}
	}

	return time.Time{}, false, nil
}

// Scope returns the scope of the tier that holds a token
func (s *Store) Scope() (Scope, error) {
	for _, st := range s.ordered() {
		token, ok, err := st.tier.Get(KeyToken)
		if err != nil {
			return ScopeNone, err
		}
		if ok && token != "" {
			return st.scope, nil
		}
	}

	return ScopeNone, nil
}

// Clear removes credential keys from both tiers
func (s *Store) Clear() error {
	return errors.Join(clearTier(s.durable), clearTier(s.ephemeral))
}

type scopedTier struct {
	scope Scope
	tier  Tier
}

func (s *Store) ordered() []scopedTier {
	return []scopedTier{
		{scope: ScopeDurable, tier: s.durable},
		{scope: ScopeEphemeral, tier: s.ephemeral},
	}
}

// Expiry is kept as unix milliseconds string
func (s *Store) expiryFrom(t Tier) (time.Time, bool, error) {
	raw, ok, err := t.Get(KeyTokenExpiry)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed token expiry %q: %w", raw, err)
	}

	return time.UnixMilli(ms), true, nil
}

func formatExpiry(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func clearTier(t Tier) error {
	return errors.Join(t.Delete(KeyToken), t.Delete(KeyTokenExpiry))
}
