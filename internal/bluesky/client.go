package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/blackmichael/rss2bsky/internal/domain"
)

const defaultPDS = "https://bsky.social"

const postCollection = "app.bsky.feed.post"

// Client is a minimal BlueSky/AT Protocol API client for posting links.
// It holds no session state; every authenticated call takes a
// domain.Session.
type Client struct {
	pds        string
	httpClient *http.Client
}

// NewClient creates a new BlueSky API client. If pds is empty, it defaults to
// https://bsky.social.
func NewClient(pds string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds: strings.TrimRight(pds, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateSession authenticates with the PDS. Use an App Password, not your
// account password. The call succeeds only if the response carries an
// access token.
func (c *Client) CreateSession(ctx context.Context, identifier, password string) (domain.Session, error) {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	status, respBody, err := c.post(ctx, "/xrpc/com.atproto.server.createSession", "", body)
	if err != nil {
		return domain.Session{}, &domain.APIError{Kind: domain.ErrAuthFailed, Err: err}
	}

	var resp createSessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil || resp.AccessJwt == "" {
		return domain.Session{}, &domain.APIError{Kind: domain.ErrAuthFailed, Status: status, Body: string(respBody)}
	}

	handle := resp.Handle
	if handle == "" {
		handle = identifier
	}
	return domain.Session{
		AccessToken: resp.AccessJwt,
		DID:         resp.DID,
		Handle:      handle,
		ExpiresAt:   tokenExpiry(resp.AccessJwt),
	}, nil
}

// UploadBlob uploads raw image bytes as a blob and returns the blob
// reference exactly as the PDS sent it. The blob will be deleted if not
// referenced in a record within a time window.
func (c *Client) UploadBlob(ctx context.Context, session domain.Session, data []byte, mimeType string) (json.RawMessage, error) {
	if session.AccessToken == "" {
		return nil, fmt.Errorf("not authenticated: create a session first")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	status, respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result uploadBlobResponse
	if err := json.Unmarshal(respBody, &result); err != nil || !present(result.Blob) {
		return nil, fmt.Errorf("API error (status %d): %s", status, string(respBody))
	}

	return result.Blob, nil
}

// CreateRecord publishes record as an app.bsky.feed.post via
// com.atproto.repo.createRecord and returns the new record's AT-URI. Any
// response without a URI is reported with its raw body.
func (c *Client) CreateRecord(ctx context.Context, session domain.Session, record domain.PostRecord) (string, error) {
	if session.AccessToken == "" {
		return "", &domain.APIError{Kind: domain.ErrPublishFailed, Err: fmt.Errorf("not authenticated: create a session first")}
	}

	body := createRecordRequest{
		Repo:       session.Repo(),
		Collection: postCollection,
		Record:     newPostRecord(record),
	}

	status, respBody, err := c.post(ctx, "/xrpc/com.atproto.repo.createRecord", session.AccessToken, body)
	if err != nil {
		return "", &domain.APIError{Kind: domain.ErrPublishFailed, Err: err}
	}

	var resp createRecordResponse
	if err := json.Unmarshal(respBody, &resp); err != nil || resp.URI == "" {
		return "", &domain.APIError{Kind: domain.ErrPublishFailed, Status: status, Body: string(respBody)}
	}

	return resp.URI, nil
}

// post sends body as JSON and returns the status and raw response body.
// Response shapes are interpreted by the caller, so non-2xx statuses are not
// errors here.
func (c *Client) post(ctx context.Context, path, token string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// tokenExpiry reads the exp claim of an access JWT without verifying it.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type uploadBlobResponse struct {
	Blob json.RawMessage `json:"blob"`
}
