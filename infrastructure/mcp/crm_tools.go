package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/observability"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/resilience"
)

// Tool names exposed by the CRM server.
const (
	ToolGetRecord = "salesforce_get_record"
	ToolQuery     = "salesforce_query"
	ToolCreate    = "salesforce_create"
	ToolUpdate    = "salesforce_update"
)

// RecordURITemplate is the resource template for single records.
const RecordURITemplate = "record://{sobject}/{record_id}"

// ErrInvalidArgument indicates a tool was called with missing or malformed arguments.
var ErrInvalidArgument = errors.New("invalid argument")

// GetRecordInput are the arguments of salesforce_get_record.
type GetRecordInput struct {
	SObject  string `json:"sobject" jsonschema:"required,description=Object type name such as Lead or Account"`
	RecordID string `json:"record_id" jsonschema:"required,description=Record id"`
}

// QueryInput are the arguments of salesforce_query.
type QueryInput struct {
	SOQL string `json:"soql" jsonschema:"required,description=SOQL query text"`
}

// CreateInput are the arguments of salesforce_create.
type CreateInput struct {
	SObject string         `json:"sobject" jsonschema:"required,description=Object type name"`
	Payload map[string]any `json:"payload" jsonschema:"required,description=Field values of the new record"`
}

// UpdateInput are the arguments of salesforce_update.
type UpdateInput struct {
	SObject  string         `json:"sobject" jsonschema:"required,description=Object type name"`
	RecordID string         `json:"record_id" jsonschema:"required,description=Record id"`
	Payload  map[string]any `json:"payload" jsonschema:"required,description=Fields to change"`
}

// CRMTools implements the tool and resource handlers over a shared session.
// Each handler is a thin adapter: one remote call, JSON text out.
type CRMTools struct {
	session  crm.Session
	executor *resilience.Executor
	tracer   trace.Tracer
	metrics  *observability.ToolMetrics
}

// NewCRMTools creates handlers bound to session. A nil executor gets defaults.
func NewCRMTools(session crm.Session, executor *resilience.Executor, tracer trace.Tracer) *CRMTools {
	if executor == nil {
		executor = resilience.NewDefaultExecutor()
	}
	noop := observability.NewNoopProvider()
	if tracer == nil {
		tracer = noop.Tracer()
	}
	metrics, _ := noop.ToolMetrics()
	return &CRMTools{session: session, executor: executor, tracer: tracer, metrics: metrics}
}

// GetRecord returns the JSON of all fields of one record.
func (t *CRMTools) GetRecord(ctx context.Context, in GetRecordInput) (string, error) {
	if err := require("sobject", in.SObject, "record_id", in.RecordID); err != nil {
		return "", err
	}
	return t.call(ctx, ToolGetRecord, in.SObject, func(ctx context.Context) (string, error) {
		record, err := t.session.Object(in.SObject).Get(ctx, in.RecordID)
		if err != nil {
			return "", err
		}
		return marshalText(record)
	})
}

// Query returns a JSON array with every record of every page.
func (t *CRMTools) Query(ctx context.Context, in QueryInput) (string, error) {
	if err := require("soql", in.SOQL); err != nil {
		return "", err
	}
	return t.call(ctx, ToolQuery, "", func(ctx context.Context) (string, error) {
		records, err := t.session.QueryAll(ctx, in.SOQL)
		if err != nil {
			return "", err
		}
		text, err := marshalText(records)
		if err != nil {
			return "", err
		}
		logging.Debug().
			Add(logging.Component("mcp")).
			Add(logging.Int("records", len(records))).
			Add(logging.Body(text)).
			Msg("query result")
		return text, nil
	})
}

// Create inserts a record and returns its new id as plain text.
func (t *CRMTools) Create(ctx context.Context, in CreateInput) (string, error) {
	if err := require("sobject", in.SObject); err != nil {
		return "", err
	}
	return t.call(ctx, ToolCreate, in.SObject, func(ctx context.Context) (string, error) {
		return t.session.Object(in.SObject).Create(ctx, crm.Record(in.Payload))
	})
}

// Update applies a partial update and returns "true".
func (t *CRMTools) Update(ctx context.Context, in UpdateInput) (string, error) {
	if err := require("sobject", in.SObject, "record_id", in.RecordID); err != nil {
		return "", err
	}
	return t.call(ctx, ToolUpdate, in.SObject, func(ctx context.Context) (string, error) {
		if err := t.session.Object(in.SObject).Update(ctx, in.RecordID, crm.Record(in.Payload)); err != nil {
			return "", err
		}
		return "true", nil
	})
}

// ReadRecord serves record://{sobject}/{record_id}.
func (t *CRMTools) ReadRecord(ctx context.Context, uri string) (string, error) {
	sobject, id, err := ParseRecordURI(uri)
	if err != nil {
		return "", err
	}
	return t.GetRecord(ctx, GetRecordInput{SObject: sobject, RecordID: id})
}

func (t *CRMTools) call(ctx context.Context, name, sobject string, fn func(context.Context) (string, error)) (string, error) {
	start := time.Now()
	var out string
	err := observability.Run(ctx, t.tracer, "tool "+name, func(ctx context.Context) error {
		var err error
		out, err = resilience.Do(ctx, t.executor, name, fn)
		return err
	}, observability.AttrToolName.String(name), observability.AttrSObject.String(sobject))
	t.metrics.Record(ctx, name, time.Since(start), err)

	var event *logging.LogEvent
	if err != nil {
		event = logging.Warn()
	} else {
		event = logging.Info()
	}
	event.
		Add(logging.Component("mcp")).
		Add(logging.ToolName(name)).
		Add(logging.SObject(sobject)).
		Add(logging.ErrorField(err)).
		Msg("tool call")

	return out, err
}

// ParseRecordURI splits record://{sobject}/{record_id}.
func ParseRecordURI(uri string) (sobject, id string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if u.Scheme != "record" {
		return "", "", fmt.Errorf("%w: scheme %q, want record", ErrInvalidArgument, u.Scheme)
	}

	sobject = u.Host
	id = strings.Trim(u.Path, "/")
	if sobject == "" || id == "" || strings.Contains(id, "/") {
		return "", "", fmt.Errorf("%w: %q does not match %s", ErrInvalidArgument, uri, RecordURITemplate)
	}
	return sobject, id, nil
}

// require checks name/value pairs for empty values.
func require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidArgument, pairs[i])
		}
	}
	return nil
}

func marshalText(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
