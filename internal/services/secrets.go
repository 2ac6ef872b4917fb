package services

import (
	"context"
	"strings"
)

// StaticSecrets treats the stored reference as the secret itself
type StaticSecrets struct{}

// Resolve implements SecretResolver
func (StaticSecrets) Resolve(ctx context.Context, ref string) (string, error) {
	return strings.TrimSpace(ref), nil
}
