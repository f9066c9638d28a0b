package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/filecoin-project/go-jsonrpc/auth"
	jwt3 "github.com/gbrlsnchs/jwt/v3"
)

const (
	TokenFile  = "token"
	SecretFile = "secret"
)

const (
	PermAdmin auth.Permission = "admin"
	PermSign  auth.Permission = "sign"
	PermWrite auth.Permission = "write"
	PermRead  auth.Permission = "read"
)

// permissions in descending order, each one implies those after it
var permLevels = []auth.Permission{PermAdmin, PermSign, PermWrite, PermRead}

type JWTPayload struct {
	Perm auth.Permission `json:"perm"`
	Name string          `json:"name"`
}

// AdaptPerm expands a single permission into every permission it implies.
func AdaptPerm(perm auth.Permission) []auth.Permission {
	for i, p := range permLevels {
		if p == perm {
			return append([]auth.Permission(nil), permLevels[i:]...)
		}
	}
	return []auth.Permission{PermRead}
}

// LocalJwtClient issues and verifies the tokens of one gateway repo.
type LocalJwtClient struct {
	repo   string
	Seckey []byte
	Token  []byte
}

// NewLocalJwtClient loads the repo secret, creating one on first use, and
// signs an admin token with it.
func NewLocalJwtClient(repo string) (*LocalJwtClient, error) {
	seckey, err := loadSecret(repo)
	if err != nil {
		return nil, err
	}
	l := &LocalJwtClient{repo: repo, Seckey: seckey}
	if l.Token, err = l.NewToken("CabinetLocalToken", PermAdmin); err != nil {
		return nil, err
	}
	return l, nil
}

func loadSecret(repo string) ([]byte, error) {
	p := filepath.Join(repo, SecretFile)
	seckey, err := os.ReadFile(p)
	if err == nil && len(seckey) == 32 {
		return seckey, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if seckey, err = io.ReadAll(io.LimitReader(rand.Reader, 32)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(p, seckey, 0600); err != nil {
		return nil, err
	}
	return seckey, nil
}

func (l *LocalJwtClient) NewToken(name string, perm auth.Permission) ([]byte, error) {
	return jwt3.Sign(JWTPayload{Perm: perm, Name: name}, jwt3.NewHS256(l.Seckey))
}

func (l *LocalJwtClient) Verify(ctx context.Context, token string) (*JWTPayload, []auth.Permission, error) {
	var payload JWTPayload
	if _, err := jwt3.Verify([]byte(token), jwt3.NewHS256(l.Seckey), &payload); err != nil {
		return nil, nil, fmt.Errorf("JWT Verification failed: %v", err)
	}
	return &payload, AdaptPerm(payload.Perm), nil
}

func (l *LocalJwtClient) SaveToken() error {
	return os.WriteFile(filepath.Join(l.repo, TokenFile), l.Token, 0600)
}
