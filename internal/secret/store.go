package secret

// SecretStore provides a pluggable interface for sensitive data such as
// dataset database passwords. The default implementation reads environment
// variables, but it can be swapped for Vault, a keychain, etc.
type SecretStore interface {
	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)
}
