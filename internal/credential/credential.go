package credential

import "errors"

// Keys under which the mail provider credentials are stored.
const (
	KeyClientID     = "client_id"
	KeyTenantID     = "tenant_id"
	KeyClientSecret = "client_secret"
	KeyRefreshToken = "refresh_token"
)

// ErrNotFound is returned when a credential key has no stored value.
var ErrNotFound = errors.New("credential not found")

// Store is the read/write surface for provider credentials. The token
// manager is the only writer; everything else reads.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
