//go:build windows

package credstore

import (
	"context"
	"syscall"

	"github.com/danieljoos/wincred"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func init() {
	provider = windowsProvider{}
}

const (
	maxTargetNameLen = 32767
	maxUserNameLen   = 513
	maxBlobSize      = 5 * 512
)

type windowsProvider struct{}

func (windowsProvider) Find(ctx context.Context, target string) (*Cred, error) {
	cred, err := wincred.GetGenericCredential(target)
	if err != nil {
		if err == syscall.ERROR_NOT_FOUND {
			return nil, ErrNotFound
		}
		return nil, err
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	secret, _, err := transform.Bytes(dec, cred.CredentialBlob)
	if err != nil {
		return nil, err
	}
	return &Cred{UserName: cred.UserName, Secret: string(secret)}, nil
}

func (windowsProvider) Store(ctx context.Context, target string, c *Cred) error {
	if len(target) > maxTargetNameLen || len(c.UserName) > maxUserNameLen || len(c.Secret) > maxBlobSize {
		return ErrSetDataTooBig
	}
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	blob, _, err := transform.Bytes(enc, []byte(c.Secret))
	if err != nil {
		return err
	}
	cred := wincred.NewGenericCredential(target)
	cred.UserName = c.UserName
	cred.CredentialBlob = blob
	return cred.Write()
}

func (windowsProvider) Discard(ctx context.Context, target string) error {
	cred, err := wincred.GetGenericCredential(target)
	if err != nil {
		if err == syscall.ERROR_NOT_FOUND {
			return ErrNotFound
		}
		return err
	}
	return cred.Delete()
}
