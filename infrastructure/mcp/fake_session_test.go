package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
)

// fakeSession is an in-memory crm.Session.
type fakeSession struct {
	mu      sync.Mutex
	records map[string]map[string]crm.Record
	nextID  int
	// failWith makes every call fail with this error when set.
	failWith error
	queries  []string
	// delay is slept before each query, outside the lock.
	delay time.Duration
}

func newFakeSession() *fakeSession {
	return &fakeSession{records: map[string]map[string]crm.Record{
		"Lead": {
			"00Q1": {"Id": "00Q1", "LastName": "Smith"},
			"00Q2": {"Id": "00Q2", "LastName": "Jones"},
		},
		"Account": {},
	}}
}

func (s *fakeSession) InstanceURL() string { return "https://example.my.salesforce.com" }
func (s *fakeSession) APIVersion() string  { return crm.DefaultAPIVersion }

func (s *fakeSession) Object(name string) crm.ObjectClient {
	return &fakeObject{s: s, name: name}
}

func (s *fakeSession) QueryAll(ctx context.Context, query string) ([]crm.Record, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, query)
	if s.failWith != nil {
		return nil, s.failWith
	}

	fields := strings.Fields(query)
	var sobject string
	for i, f := range fields {
		if strings.EqualFold(f, "FROM") && i+1 < len(fields) {
			sobject = fields[i+1]
		}
	}
	table, ok := s.records[sobject]
	if !ok {
		return nil, &crm.RemoteError{Method: "GET", URL: "/query", StatusCode: 400, Body: `[{"errorCode":"INVALID_TYPE"}]`}
	}

	out := []crm.Record{}
	for _, r := range table {
		out = append(out, r)
	}
	return out, nil
}

type fakeObject struct {
	s    *fakeSession
	name string
}

func (o *fakeObject) Type() string { return o.name }

func (o *fakeObject) Get(ctx context.Context, id string) (crm.Record, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if o.s.failWith != nil {
		return nil, o.s.failWith
	}
	r, ok := o.s.records[o.name][id]
	if !ok {
		return nil, &crm.RemoteError{Method: "GET", URL: "/sobjects/" + o.name + "/" + id, StatusCode: 404}
	}
	return r, nil
}

func (o *fakeObject) Create(ctx context.Context, fields crm.Record) (string, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if o.s.failWith != nil {
		return "", o.s.failWith
	}
	table, ok := o.s.records[o.name]
	if !ok {
		return "", &crm.RemoteError{Method: "POST", URL: "/sobjects/" + o.name, StatusCode: 404}
	}
	o.s.nextID++
	id := fmt.Sprintf("NEW%d", o.s.nextID)
	rec := crm.Record{"Id": id}
	for k, v := range fields {
		rec[k] = v
	}
	table[id] = rec
	return id, nil
}

func (o *fakeObject) Update(ctx context.Context, id string, fields crm.Record) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if o.s.failWith != nil {
		return o.s.failWith
	}
	rec, ok := o.s.records[o.name][id]
	if !ok {
		return &crm.RemoteError{Method: "PATCH", URL: "/sobjects/" + o.name + "/" + id, StatusCode: 404}
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}
