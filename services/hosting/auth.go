package hosting

import (
	"context"
	"errors"
	"fmt"
)

// Credential is the result of one vendor lookup for a presented token. All
// authorization predicates for a request are answered from it.
type Credential struct {
	Token  string
	Vendor *Vendor
}

// Exists reports whether a vendor with the token exists in any state.
func (c Credential) Exists() bool {
	return c.Vendor != nil
}

// Active reports whether the vendor exists and is enabled.
func (c Credential) Active() bool {
	return c.Vendor != nil && c.Vendor.Enabled
}

// Master reports whether the vendor's contact is the signing identity.
func (c Credential) Master(signingContact string) bool {
	return c.Vendor != nil && signingContact != "" && c.Vendor.Contact == signingContact
}

// Authenticate looks the token up once. An empty token yields an empty
// Credential without touching the database.
func (s *Service) Authenticate(ctx context.Context, token string) (Credential, error) {
	if token == "" {
		return Credential{}, nil
	}
	v, err := s.repos(s.db).FindVendor(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credential{Token: token}, nil
		}
		return Credential{}, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return Credential{Token: token, Vendor: v}, nil
}

// Exists reports whether a vendor with token exists, enabled or not.
func (s *Service) Exists(ctx context.Context, token string) (bool, error) {
	c, err := s.Authenticate(ctx, token)
	return c.Exists(), err
}

// IsActive reports whether token belongs to an enabled vendor.
func (s *Service) IsActive(ctx context.Context, token string) (bool, error) {
	c, err := s.Authenticate(ctx, token)
	return c.Active(), err
}

// IsMaster reports whether token belongs to the signing identity.
func (s *Service) IsMaster(ctx context.Context, token string) (bool, error) {
	c, err := s.Authenticate(ctx, token)
	return c.Master(s.signingContact), err
}
