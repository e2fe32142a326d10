package salesforce

import (
	"context"
	"fmt"
	"net/http"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
)

// objectClient addresses the sobjects resource of one object type.
type objectClient struct {
	session *Session
	name    string
}

var _ crm.ObjectClient = (*objectClient)(nil)

func (o *objectClient) Type() string {
	return o.name
}

// Get fetches one record with all of its fields.
func (o *objectClient) Get(ctx context.Context, id string) (crm.Record, error) {
	var record crm.Record
	if err := o.session.doJSON(ctx, http.MethodGet, o.session.sobjectURL(o.name, id), nil, &record); err != nil {
		return nil, err
	}
	return record, nil
}

type createResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Errors  []any  `json:"errors"`
}

// Create inserts a record and returns its id.
func (o *objectClient) Create(ctx context.Context, fields crm.Record) (string, error) {
	if fields == nil {
		fields = crm.Record{}
	}

	u := o.session.sobjectURL(o.name, "")
	var resp createResponse
	if err := o.session.doJSON(ctx, http.MethodPost, u, fields, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &crm.RemoteError{
			Method: http.MethodPost,
			URL:    u,
			Err:    fmt.Errorf("%w: create response has no id", crm.ErrMalformedResponse),
		}
	}
	return resp.ID, nil
}

// Update applies a partial update. Any 2xx response is success.
func (o *objectClient) Update(ctx context.Context, id string, fields crm.Record) error {
	if fields == nil {
		fields = crm.Record{}
	}
	_, err := o.session.do(ctx, http.MethodPatch, o.session.sobjectURL(o.name, id), fields)
	return err
}
