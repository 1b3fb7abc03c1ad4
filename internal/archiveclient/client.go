// Package archiveclient implements a thin REST client for the remote
// data-archive service: it knows the archive's resource URLs and
// authentication header, and maps non-2xx responses to the typed errors
// in archiveerrors. It is deliberately thin — the same shape as the
// teacher's apiclient.KopiaAPIClient: a BaseURL plus http.Client wrapped
// by small Get/Post helpers that JSON-encode/decode and classify errors.
package archiveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/manishkumr/mydata/internal/archiveerrors"
	"github.com/manishkumr/mydata/internal/logging"
)

var log = logging.Module("archiveclient")

// DefaultProbeTimeout bounds "am I online?" connectivity probes.
const DefaultProbeTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL    string
	Username   string
	APIKey     string
	HTTPClient *http.Client
	// LogRequests enables debug logging of each outgoing request.
	LogRequests bool
	// InstanceID identifies this agent instance to the archive across
	// restarts, e.g. when requesting staging access (see
	// archiveclient.Client.RequestStagingAccess). An empty value is
	// replaced with a fresh uuid.New() so the client always has something
	// to send; cmd/mydata leaves it empty, so each of its runs sends a new
	// identifier.
	InstanceID string
}

// Client is a thin wrapper over the archive's versioned REST surface.
type Client struct {
	opts Options
}

// New constructs a Client. BaseURL is normalized to include the
// "/api/v1/" prefix the archive expects.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("archiveclient: BaseURL is required")
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 0}
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if !strings.HasSuffix(opts.BaseURL, "/api/v1") {
		opts.BaseURL += "/api/v1"
	}

	opts.BaseURL += "/"

	if opts.InstanceID == "" {
		opts.InstanceID = uuid.New().String()
	}

	return &Client{opts: opts}, nil
}

func (c *Client) authHeader() string {
	return fmt.Sprintf("ApiKey %s:%s", c.opts.Username, c.opts.APIKey)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", c.authHeader())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do executes req, classifies the response, and on success decodes the
// body into respPayload (when non-nil).
func (c *Client) do(ctx context.Context, req *http.Request, respPayload interface{}) error {
	if c.opts.LogRequests {
		log.Debugf("%s %s", req.Method, req.URL)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "archive request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := classifyStatus(resp); err != nil {
		return err
	}

	if respPayload == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(respPayload); err != nil {
		return errors.Wrap(err, "malformed archive response")
	}

	return nil
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &archiveerrors.Unauthorized{Message: string(body)}
	case http.StatusConflict:
		return &archiveerrors.DuplicateKey{Message: string(body)}
	case http.StatusNotFound:
		return &archiveerrors.DoesNotExist{ResourceType: "resource", Query: resp.Request.URL.String()}
	case http.StatusUpgradeRequired:
		return &archiveerrors.IncompatibleVersion{Message: string(body)}
	default:
		return &archiveerrors.HttpError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	return c.do(ctx, req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	var buf bytes.Buffer

	if in != nil {
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return errors.Wrap(err, "unable to encode request")
		}
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}

	return c.do(ctx, req, out)
}
