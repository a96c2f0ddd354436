package usecases

import (
	"context"
	"errors"
	"io/fs"

	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/intents"
	"github.com/example/court-scheduler/internal/internaltypes"
)

type TokenManager interface {
	Bootstrap(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context) (credential.Credential, error)
	Health() credential.Health
}

// CredentialsService installs operator-supplied refresh tokens.
type CredentialsService struct {
	Manager TokenManager
}

// Set installs refreshToken. With verify, one exchange is made right away so
// a dead token is reported now instead of at the next booking.
func (s CredentialsService) Set(ctx context.Context, refreshToken string, verify bool) (credential.Health, error) {
	if err := s.Manager.Bootstrap(ctx, refreshToken); err != nil {
		return credential.Health{}, err
	}
	if verify {
		if _, err := s.Manager.Refresh(ctx); err != nil {
			return s.Manager.Health(), err
		}
	}
	return s.Manager.Health(), nil
}

func (s CredentialsService) SetFromFile(ctx context.Context, path string, verify bool) (credential.Health, error) {
	tok, err := intents.ReadRefreshToken(path)
	if err != nil {
		return credential.Health{}, err
	}
	return s.Set(ctx, tok, verify)
}

// BootstrapIfMissing seeds the store from the tokens file on first start.
// A stored credential is kept: it has rotated past the file's token. It
// reports whether the file was used.
func (s CredentialsService) BootstrapIfMissing(ctx context.Context, path string) (bool, error) {
	if s.Manager.Health().HasToken || path == "" {
		return false, nil
	}
	tok, err := intents.ReadRefreshToken(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.Manager.Bootstrap(ctx, tok); err != nil {
		return false, internaltypes.Wrap(err, "bootstrap credential")
	}
	return true, nil
}
