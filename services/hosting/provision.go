package hosting

import (
	"context"
	"errors"
	"fmt"

	"lvfs/pkg/db"
	"lvfs/pkg/storage"
)

// AdminRequest is one admin form submission.
type AdminRequest struct {
	Action      Op
	MasterToken string
	Target      string
	Name        string
	Contact     string
}

// Administer dispatches req to the matching provisioning operation.
func (s *Service) Administer(ctx context.Context, req AdminRequest) (*Outcome, error) {
	switch req.Action {
	case OpAdd:
		return s.AddVendor(ctx, req.MasterToken, req.Target, req.Name, req.Contact)
	case OpDisable:
		return s.DisableVendor(ctx, req.MasterToken, req.Target)
	case OpRemove:
		return s.RemoveVendor(ctx, req.MasterToken, req.Target)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

// AddVendor creates an enabled vendor. The master check and the target
// existence check are both always evaluated. An empty target gets a generated
// token, reported back in Outcome.Token.
func (s *Service) AddVendor(ctx context.Context, master, target, name, contact string) (*Outcome, error) {
	out := NewOutcome(OpAdd)

	admin, err := s.Authenticate(ctx, master)
	if err != nil {
		return nil, err
	}
	if !admin.Master(s.signingContact) {
		out.Fail(CheckAuthKey)
	}

	generated := target == ""
	if generated {
		target = s.newToken()
	} else {
		cand, err := s.Authenticate(ctx, target)
		if err != nil {
			return nil, err
		}
		if cand.Exists() {
			out.Fail(CheckExists)
		}
	}

	if !out.OK() {
		return out, nil
	}

	v := &Vendor{
		GUID:      target,
		Name:      name,
		Contact:   contact,
		Enabled:   true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repos(s.db).CreateVendor(ctx, v); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			out.Fail(CheckExists)
			return out, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if generated {
		out.Token = target
	}

	s.log.Info().Str("vendor", vendorLabel(v)).Msg("vendor added")
	s.publish(ctx, EventVendorAdded, vendorLabel(admin.Vendor), vendorLabel(v), map[string]any{
		"contact": contact,
	})
	return out, nil
}

// DisableVendor clears the enabled flag of an existing vendor.
func (s *Service) DisableVendor(ctx context.Context, master, target string) (*Outcome, error) {
	out, admin, cand, err := s.authorizeTarget(ctx, OpDisable, master, target)
	if err != nil || !out.OK() {
		return out, err
	}

	if err := s.repos(s.db).SetVendorEnabled(ctx, target, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			out.Fail(CheckExists)
			return out, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	s.log.Info().Str("vendor", vendorLabel(cand.Vendor)).Msg("vendor disabled")
	s.publish(ctx, EventVendorDisabled, vendorLabel(admin.Vendor), vendorLabel(cand.Vendor), nil)
	return out, nil
}

// RemoveVendor deletes the vendor and its firmware rows in one transaction,
// then deletes the stored blobs. Blob deletion failures are logged only.
func (s *Service) RemoveVendor(ctx context.Context, master, target string) (*Outcome, error) {
	out, admin, cand, err := s.authorizeTarget(ctx, OpRemove, master, target)
	if err != nil || !out.OK() {
		return out, err
	}

	var sums []string
	err = db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		repo := s.repos(tx)
		deleted, err := repo.DeleteFirmwareByVendor(ctx, target)
		if err != nil {
			return err
		}
		if err := repo.DeleteVendor(ctx, target); err != nil {
			return err
		}
		sums = deleted
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			out.Fail(CheckExists)
			return out, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	for _, sum := range sums {
		s.removeBlob(ctx, storage.Name(sum))
	}

	s.log.Info().Str("vendor", vendorLabel(cand.Vendor)).Int("firmware", len(sums)).Msg("vendor removed")
	s.publish(ctx, EventVendorRemoved, vendorLabel(admin.Vendor), vendorLabel(cand.Vendor), map[string]any{
		"firmware": sums,
	})
	return out, nil
}

// authorizeTarget evaluates the master check and the target existence check
// for disable and remove, both unconditionally.
func (s *Service) authorizeTarget(ctx context.Context, op Op, master, target string) (*Outcome, Credential, Credential, error) {
	out := NewOutcome(op)

	admin, err := s.Authenticate(ctx, master)
	if err != nil {
		return nil, Credential{}, Credential{}, err
	}
	if !admin.Master(s.signingContact) {
		out.Fail(CheckAuthKey)
	}

	cand, err := s.Authenticate(ctx, target)
	if err != nil {
		return nil, Credential{}, Credential{}, err
	}
	if !cand.Exists() {
		out.Fail(CheckExists)
	}
	return out, admin, cand, nil
}

// Bootstrap creates the master vendor, carrying the signing contact, with a
// generated token. It is an operator action and performs no token check.
func (s *Service) Bootstrap(ctx context.Context, name string) (*Vendor, error) {
	v := &Vendor{
		GUID:      s.newToken(),
		Name:      name,
		Contact:   s.signingContact,
		Enabled:   true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repos(s.db).CreateVendor(ctx, v); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	s.publish(ctx, EventVendorAdded, "operator", vendorLabel(v), map[string]any{
		"contact": v.Contact,
		"master":  true,
	})
	return v, nil
}
