package credential

import "context"

// Sealer encrypts individual token strings.
type Sealer interface {
	EncryptToString(plaintext string) (string, error)
	DecryptString(sealed string) (string, error)
}

type sealedStore struct {
	inner  Store
	sealer Sealer
}

// Sealed wraps inner so tokens are encrypted before they reach storage.
// A nil sealer returns inner unchanged.
func Sealed(inner Store, s Sealer) Store {
	if s == nil {
		return inner
	}
	return &sealedStore{inner: inner, sealer: s}
}

func (s *sealedStore) Load(ctx context.Context) (Credential, bool, error) {
	c, ok, err := s.inner.Load(ctx)
	if err != nil || !ok {
		return c, ok, err
	}
	if c.AccessToken, err = s.sealer.DecryptString(c.AccessToken); err != nil {
		return Credential{}, false, err
	}
	if c.RefreshToken, err = s.sealer.DecryptString(c.RefreshToken); err != nil {
		return Credential{}, false, err
	}
	return c, true, nil
}

func (s *sealedStore) Save(ctx context.Context, c Credential) error {
	var err error
	if c.AccessToken, err = s.sealer.EncryptToString(c.AccessToken); err != nil {
		return err
	}
	if c.RefreshToken, err = s.sealer.EncryptToString(c.RefreshToken); err != nil {
		return err
	}
	return s.inner.Save(ctx, c)
}
