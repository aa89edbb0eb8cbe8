package secret

import (
	"os"
	"strings"
)

// EnvPrefix is prepended to the upper-cased key when looking up a secret.
const EnvPrefix = "SHEETLOC_SECRET_"

// EnvStore implements SecretStore on top of process environment variables.
// Key "team-db" resolves to SHEETLOC_SECRET_TEAM_DB.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore creates an EnvStore reading os.Environ.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// Get returns the secret for key, or nil if the variable is unset.
func (s *EnvStore) Get(key string) ([]byte, error) {
	v, ok := s.lookup(EnvName(key))
	if !ok {
		return nil, nil
	}
	return []byte(strings.TrimSpace(v)), nil
}

// EnvName returns the environment variable consulted for key.
func EnvName(key string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return EnvPrefix + strings.ToUpper(r.Replace(key))
}

// MapStore is an in-memory SecretStore, handy for tests and embedding.
type MapStore map[string]string

func (m MapStore) Get(key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}
