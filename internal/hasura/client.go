// Package hasura is the gateway to a Hasura GraphQL Engine: metadata operations on
// /v1/metadata, SQL on /v2/query and the /healthz readiness probe.
package hasura

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kyleking/qik-trak/internal/config"
	qerrors "github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/types"
)

const (
	MetadataPath      = "/v1/metadata"
	QueryPath         = "/v2/query"
	HealthPath        = "/healthz"
	AdminSecretHeader = "X-Hasura-Admin-Secret"

	// DefaultRequestTimeout applies when no timeout is configured
	DefaultRequestTimeout = 30 * time.Second
	// DefaultSource is the metadata source name of a single-database Hasura
	DefaultSource = "default"
)

// Options configure a Client
type Options struct {
	Endpoint    string
	AdminSecret string
	Source      string
	Schema      string
	Timeout     time.Duration
	// HTTPClient replaces the default client; Timeout is ignored when set
	HTTPClient *http.Client
}

// Client implements the metadata gateway over HTTP
type Client struct {
	endpoint    string
	adminSecret string
	source      string
	schema      string
	httpClient  *http.Client

	backoffBase time.Duration
	maxBackoff  time.Duration
}

// NewClient creates a gateway client. Missing credentials are reported on first use.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	source := opts.Source
	if source == "" {
		source = DefaultSource
	}

	return &Client{
		endpoint:    strings.TrimRight(opts.Endpoint, "/"),
		adminSecret: opts.AdminSecret,
		source:      source,
		schema:      opts.Schema,
		httpClient:  httpClient,
		backoffBase: 250 * time.Millisecond,
		maxBackoff:  5 * time.Second,
	}
}

// NewClientFromConfig creates a gateway client from the loaded configuration
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(Options{
		Endpoint:    cfg.HasuraEndpoint,
		AdminSecret: cfg.HasuraAdminSecret,
		Source:      cfg.TargetDatabase,
		Schema:      cfg.TargetSchema,
		Timeout:     cfg.RequestTimeout(),
	})
}

// Endpoint returns the base URL of the engine
func (c *Client) Endpoint() string {
	return c.endpoint
}

// RequireCredentials fails before any network I/O when the endpoint or secret is missing
func (c *Client) RequireCredentials() error {
	if c.endpoint == "" {
		return qerrors.NewConfigError("metadata endpoint is not set", "hasuraEndpoint").
			WithSuggestion("Set HASURA_GRAPHQL_ENDPOINT or pass --endpoint")
	}

	if c.adminSecret == "" {
		return qerrors.NewConfigError("admin secret is not set", "hasuraAdminSecret").
			WithSuggestion("Set HASURA_GRAPHQL_ADMIN_SECRET or pass --admin-secret")
	}

	return nil
}

// post sends a JSON envelope and returns the status code and raw body
func (c *Client) post(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	if err := c.RequireCredentials(); err != nil {
		return 0, nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, qerrors.Wrap(err, qerrors.ErrTypeInternal, "failed to encode request")
	}

	url := c.endpoint + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, qerrors.Wrapf(err, qerrors.ErrTypeNetwork, "failed to build request for %s", url)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AdminSecretHeader, c.adminSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, qerrors.Wrapf(err, qerrors.ErrTypeNetwork, "request to %s failed", url).
			WithSuggestion("Check that the GraphQL engine is running and reachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, qerrors.Wrapf(err, qerrors.ErrTypeNetwork, "failed to read response from %s", url)
	}

	return resp.StatusCode, data, nil
}

// sqlResponse is the body of a successful run_sql call
type sqlResponse struct {
	ResultType string          `json:"result_type"`
	Result     [][]interface{} `json:"result"`
}

// RunSQL executes a statement through run_sql. For TuplesOk results the first row is
// the column header; CommandOk results return no rows.
func (c *Client) RunSQL(ctx context.Context, statement string) ([][]string, error) {
	status, body, err := c.post(ctx, QueryPath, Request{
		Type: OpRunSQL,
		Args: RunSQLArgs{Source: c.source, SQL: statement},
	})
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		code, message := parseAPIError(status, body)

		return nil, &QueryError{
			Endpoint:  c.endpoint + QueryPath,
			Statement: statement,
			Status:    status,
			Code:      code,
			Message:   message,
		}
	}

	var resp sqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrTypeQuery, "failed to decode run_sql response")
	}

	rows := make([][]string, 0, len(resp.Result))
	for _, row := range resp.Result {
		cells := make([]string, len(row))

		for i, v := range row {
			switch val := v.(type) {
			case nil:
				cells[i] = ""
			case string:
				cells[i] = val
			default:
				cells[i] = fmt.Sprint(val)
			}
		}

		rows = append(rows, cells)
	}

	return rows, nil
}

// RunMetadata posts a metadata operation and returns the raw response body
func (c *Client) RunMetadata(ctx context.Context, opType string, args interface{}) (json.RawMessage, error) {
	status, body, err := c.post(ctx, MetadataPath, Request{Type: opType, Args: args})
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		code, message := parseAPIError(status, body)

		return nil, &MetadataError{
			OpType:  opType,
			Args:    args,
			Status:  status,
			Code:    code,
			Message: message,
		}
	}

	return json.RawMessage(body), nil
}

// runOperation issues a metadata operation and folds idempotent conflicts into success
func (c *Client) runOperation(ctx context.Context, opType string, args interface{}) (types.Outcome, error) {
	_, err := c.RunMetadata(ctx, opType, args)

	outcome := Classify(err)
	if outcome.Succeeded() {
		return outcome, nil
	}

	return outcome, err
}

// UntrackTable removes a table and its dependent metadata
func (c *Client) UntrackTable(ctx context.Context, table string) (types.Outcome, error) {
	return c.runOperation(ctx, OpUntrackTable, NewUntrackTableArgs(c.source, c.schema, table))
}

// TrackTable exposes a table or view through the GraphQL API
func (c *Client) TrackTable(ctx context.Context, table string) (types.Outcome, error) {
	return c.runOperation(ctx, OpTrackTable, NewTrackTableArgs(c.source, c.schema, table))
}

// CreateObjectRelationship creates the many-to-one relationship on d.ReferencingTable
func (c *Client) CreateObjectRelationship(ctx context.Context, name string, d types.RelationshipDescriptor) (types.Outcome, error) {
	return c.runOperation(ctx, OpCreateObjectRelationship, NewObjectRelationshipArgs(c.source, c.schema, name, d))
}

// CreateArrayRelationship creates the one-to-many relationship on d.ReferencedTable
func (c *Client) CreateArrayRelationship(ctx context.Context, name string, d types.RelationshipDescriptor) (types.Outcome, error) {
	return c.runOperation(ctx, OpCreateArrayRelationship, NewArrayRelationshipArgs(c.source, c.schema, name, d))
}
