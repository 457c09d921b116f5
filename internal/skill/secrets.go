package skill

import (
	"context"
	"fmt"
	"os"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// EnvSecretStore resolves a CredentialRef by treating it as an environment
// variable name, in keeping with this service's env-over-framework
// configuration choice (see internal/config). Production deployments
// wanting a KMS or vault back-end implement SecretStore separately; nothing
// in the engine or invoker depends on this concrete type.
type EnvSecretStore struct{}

func NewEnvSecretStore() *EnvSecretStore { return &EnvSecretStore{} }

func (EnvSecretStore) Resolve(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", apperr.New(apperr.KindValidation, "credential_ref must not be empty")
	}
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", apperr.New(apperr.KindExecution, fmt.Sprintf("credential %q is not set", ref))
	}
	return v, nil
}
