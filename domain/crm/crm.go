// Package crm provides the domain model for CRM records and sessions.
package crm

import (
	"context"
	"time"
)

// DefaultAPIVersion is the REST API version a session binds to when none is configured.
const DefaultAPIVersion = "60.0"

// Record is one CRM entity as a mapping from field name to value.
type Record map[string]any

// ID returns the record identifier stored under the "Id" field.
func (r Record) ID() string {
	id, _ := r["Id"].(string)
	return id
}

// Token is the result of a client-credentials exchange.
type Token struct {
	// AccessToken is the opaque bearer credential.
	AccessToken string

	// InstanceURL is the base URL every API call is made against.
	InstanceURL string

	// TokenType is the token type reported by the provider (usually "Bearer").
	TokenType string

	// IssuedAt is when the token was obtained. Expiry is owned by the provider.
	IssuedAt time.Time
}

// ObjectClient performs record operations on a single object type.
type ObjectClient interface {
	// Type returns the object type name (e.g. "Lead").
	Type() string

	// Get fetches one record with all of its fields.
	Get(ctx context.Context, id string) (Record, error)

	// Create inserts a record and returns the newly assigned id.
	Create(ctx context.Context, fields Record) (string, error)

	// Update applies a partial update to an existing record.
	Update(ctx context.Context, id string, fields Record) error
}

// Session is an authenticated handle to the remote CRM.
// Implementations are safe for concurrent use and are never mutated after creation.
type Session interface {
	// Object returns a client for the named object type.
	// The name is not checked locally; the remote rejects unknown types.
	Object(name string) ObjectClient

	// QueryAll runs a query and returns every matching record across all pages.
	QueryAll(ctx context.Context, query string) ([]Record, error)

	// InstanceURL returns the base URL the session is bound to.
	InstanceURL() string

	// APIVersion returns the REST API version the session is bound to.
	APIVersion() string
}
