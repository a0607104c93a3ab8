package certificates

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	codeAlphabet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	CertificateNumberLen = 12
	VerificationCodeLen  = 16
	maxCodeAttempts      = 32
)

// ErrCodeSpaceExhausted is returned when every sampled code was already taken.
var ErrCodeSpaceExhausted = errors.New("could not generate a unique code")

// CodeChecker reports whether a code is already held in the given column.
type CodeChecker interface {
	CodeExists(ctx context.Context, field CodeField, code string) (bool, error)
}

// CodeGenerator samples random codes and re-samples until the store has no match.
type CodeGenerator struct {
	Checker CodeChecker
	// Random defaults to crypto/rand.Reader; tests swap it for a deterministic source.
	Random interface{ Read([]byte) (int, error) }
}

// GenerateUnique returns a code of length n that no certificate holds in field.
// Store failures propagate; a code is never returned without a successful check.
func (g *CodeGenerator) GenerateUnique(ctx context.Context, field CodeField, n int) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := g.randomCode(n)
		if err != nil {
			return "", err
		}
		exists, err := g.Checker.CodeExists(ctx, field, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrCodeSpaceExhausted, field, maxCodeAttempts)
}

func (g *CodeGenerator) randomCode(n int) (string, error) {
	src := g.Random
	if src == nil {
		src = rand.Reader
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(src, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out), nil
}
