// Package client implements Fetch, Pull, and Push (spec.md §4.5/§4.6)
// against a remote speaking the internal/wireproto wire protocol, driving
// blob transfer through internal/transport's chunked worker pool.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/transport"
	"github.com/oxen-vcs/oxen-core/internal/wireproto"
)

// ErrInvalidRemoteURL is returned by NewRemote for a URL that fails
// validation (unsupported scheme, missing host, private/internal address).
var ErrInvalidRemoteURL = errors.New("client: invalid remote URL")

// NormalizeRemoteURL canonicalizes a remote's base URL for storage in
// .oxen/config: lowercases the host, strips a trailing slash, rejects
// anything that isn't plain http(s) (the wire protocol is HTTP-only per
// spec.md §6.1), and rejects private/internal hosts to prevent a malicious
// remote URL from directing pushes/fetches at internal infrastructure.
// Adapted from gitvista's repomanager.normalizeURL, trimmed to the http(s)
// case since Oxen's wire protocol has no SSH transport.
func NormalizeRemoteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidRemoteURL)
	}
	if strings.HasPrefix(raw, "-") {
		return "", fmt.Errorf("%w: must not start with '-'", ErrInvalidRemoteURL)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRemoteURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" && scheme != "http" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRemoteURL, parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidRemoteURL)
	}
	if isPrivateHost(host) {
		return "", fmt.Errorf("%w: %q resolves to a private/internal address", ErrInvalidRemoteURL, host)
	}
	hostPart := host
	if port := parsed.Port(); port != "" {
		hostPart = host + ":" + port
	}
	path := strings.TrimRight(parsed.Path, "/")
	return scheme + "://" + hostPart + path, nil
}

// isPrivateHost reports whether host resolves to a loopback, private, or
// link-local address, preventing a remote URL from targeting internal
// infrastructure (e.g. a cloud metadata endpoint).
func isPrivateHost(host string) bool {
	switch host {
	case "localhost", "metadata.google.internal":
		return true
	}
	ips, err := net.DefaultResolver.LookupHost(context.Background(), host)
	if err != nil {
		if ip := net.ParseIP(host); ip != nil {
			return isPrivateIP(ip)
		}
		return false
	}
	for _, s := range ips {
		if ip := net.ParseIP(s); ip != nil && isPrivateIP(ip) {
			return true
		}
	}
	return false
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// Remote is a wire-protocol client bound to one namespaced repo on a server
// (spec.md §6.1: paths are namespaced "{namespace}/{repo}/...").
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemote validates and wraps baseURL (e.g. "https://oxen.example.com/myorg/myrepo").
func NewRemote(baseURL string) (*Remote, error) {
	normalized, err := NormalizeRemoteURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Remote{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (r *Remote) url(format string, a ...any) string {
	return r.baseURL + "/" + fmt.Sprintf(format, a...)
}

// WireError is a non-2xx wire-protocol response, carrying spec.md §7's
// error Kind so callers can branch on it with errors.As instead of
// matching HTTP status codes or message text.
type WireError struct {
	Kind       string
	Message    string
	StatusCode int
}

func (e *WireError) Error() string {
	return fmt.Sprintf("client: %s: %s", e.Kind, e.Message)
}

// wireError classifies a non-2xx HTTP response into spec.md §7's taxonomy,
// wrapping NotFound/Unauthorized/Forbidden in transport.TerminalError so the
// chunked-transfer retry loop gives up immediately on them.
func wireError(resp *http.Response) error {
	var body wireproto.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Message
	if msg == "" {
		msg = resp.Status
	}
	kind := body.Kind
	if kind == "" {
		kind = statusToKind(resp.StatusCode)
	}
	err := &WireError{Kind: kind, Message: msg, StatusCode: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
		return &transport.TerminalError{Err: err}
	default:
		return err
	}
}

func statusToKind(code int) string {
	switch code {
	case http.StatusNotFound:
		return wireproto.KindNotFound
	case http.StatusUnauthorized:
		return wireproto.KindUnauthorized
	case http.StatusForbidden:
		return wireproto.KindForbidden
	case http.StatusPreconditionFailed:
		return wireproto.KindPreconditionFailed
	case http.StatusConflict:
		return wireproto.KindConflict
	case http.StatusBadRequest:
		return wireproto.KindInvalidInput
	default:
		return wireproto.KindTransient
	}
}

func (r *Remote) do(ctx context.Context, method, path string, body io.Reader, out any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return resp, wireError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("client: decode response from %s: %w", path, err)
		}
	}
	return resp, nil
}

func (r *Remote) getJSON(ctx context.Context, path string, out any) error {
	_, err := r.do(ctx, http.MethodGet, r.url("%s", path), nil, out)
	return err
}

func (r *Remote) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("client: marshal request: %w", err)
	}
	_, err = r.do(ctx, http.MethodPost, r.url("%s", path), bytes.NewReader(data), out)
	return err
}

func (r *Remote) putJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("client: marshal request: %w", err)
	}
	_, err = r.do(ctx, http.MethodPut, r.url("%s", path), bytes.NewReader(data), out)
	return err
}

// GetBranch implements GET branches/{name}.
func (r *Remote) GetBranch(ctx context.Context, name string) (wireproto.BranchInfo, error) {
	var out wireproto.BranchInfo
	err := r.getJSON(ctx, "branches/"+url.PathEscape(name), &out)
	return out, err
}

// ListBranches implements GET branches.
func (r *Remote) ListBranches(ctx context.Context) ([]wireproto.BranchInfo, error) {
	var out []wireproto.BranchInfo
	err := r.getJSON(ctx, "branches", &out)
	return out, err
}

// CreateBranch implements POST branches.
func (r *Remote) CreateBranch(ctx context.Context, req wireproto.CreateBranchRequest) error {
	return r.postJSON(ctx, "branches", req, nil)
}

// UpdateBranch implements PUT branches/{name}, the push CAS (spec.md §4.6
// step 5 / P10): fails if the remote's current value isn't ExpectedCommitID.
func (r *Remote) UpdateBranch(ctx context.Context, name string, req wireproto.UpdateBranchRequest) error {
	_, err := r.do(ctx, http.MethodPut, r.url("branches/%s", url.PathEscape(name)), jsonBody(req), nil)
	return err
}

// DeleteBranch implements DELETE branches/{name}.
func (r *Remote) DeleteBranch(ctx context.Context, name string) error {
	_, err := r.do(ctx, http.MethodDelete, r.url("branches/%s", url.PathEscape(name)), nil, nil)
	return err
}

// LockBranch implements POST branches/{name}/lock.
func (r *Remote) LockBranch(ctx context.Context, name string) error {
	return r.postJSON(ctx, "branches/"+url.PathEscape(name)+"/lock", nil, nil)
}

// UnlockBranch implements POST branches/{name}/unlock.
func (r *Remote) UnlockBranch(ctx context.Context, name string) error {
	return r.postJSON(ctx, "branches/"+url.PathEscape(name)+"/unlock", nil, nil)
}

// IsLocked implements GET branches/{name}/lock.
func (r *Remote) IsLocked(ctx context.Context, name string) (wireproto.LockStatus, error) {
	var out wireproto.LockStatus
	err := r.getJSON(ctx, "branches/"+url.PathEscape(name)+"/lock", &out)
	return out, err
}

// LatestSyncedCommit implements GET branches/{name}/latest_synced_commit.
func (r *Remote) LatestSyncedCommit(ctx context.Context, name string) (wireproto.LatestSyncedCommitResponse, error) {
	var out wireproto.LatestSyncedCommitResponse
	err := r.getJSON(ctx, "branches/"+url.PathEscape(name)+"/latest_synced_commit", &out)
	return out, err
}

// GetCommit implements GET commits/{id}.
func (r *Remote) GetCommit(ctx context.Context, id string) (wireproto.CommitInfo, error) {
	var out wireproto.CommitInfo
	err := r.getJSON(ctx, "commits/"+id, &out)
	return out, err
}

// MissingNodes implements POST tree/missing.
func (r *Remote) MissingNodes(ctx context.Context, hashes []string) ([]string, error) {
	var out wireproto.MissingNodesResponse
	err := r.postJSON(ctx, "tree/missing", wireproto.MissingNodesRequest{Hashes: hashes}, &out)
	return out.Missing, err
}

// TreeBetween implements GET tree/between/{base}/{head} (nodes only, no blobs).
func (r *Remote) TreeBetween(ctx context.Context, base, head string) (map[string][]byte, error) {
	var out wireproto.NodeBundle
	err := r.getJSON(ctx, fmt.Sprintf("tree/between/%s/%s", base, head), &out)
	return out.Nodes, err
}

// TreeFrom implements GET tree/from/{head} (full history back to the root).
func (r *Remote) TreeFrom(ctx context.Context, head string) (map[string][]byte, error) {
	var out wireproto.NodeBundle
	err := r.getJSON(ctx, "tree/from/"+head, &out)
	return out.Nodes, err
}

// DirHashes implements GET commits/{id}/dir_hashes.
func (r *Remote) DirHashes(ctx context.Context, commitID string) (map[string]string, error) {
	var out wireproto.DirHashesResponse
	err := r.getJSON(ctx, "commits/"+commitID+"/dir_hashes", &out)
	return out.DirHashes, err
}

// Versions implements POST versions, the small-files bundle request.
func (r *Remote) Versions(ctx context.Context, contentIDs []string) (map[string][]byte, error) {
	var out wireproto.VersionsResponse
	err := r.postJSON(ctx, "versions", wireproto.VersionsRequest{ContentIDs: contentIDs}, &out)
	return out.Blobs, err
}

// PutVersions uploads a batch of small blobs in one request.
func (r *Remote) PutVersions(ctx context.Context, blobs map[string][]byte) error {
	return r.putJSON(ctx, "versions", wireproto.VersionsResponse{Blobs: blobs}, nil)
}

// PutNodes uploads a batch of node bytes in one request, keyed by hash; the
// batch is a map, so it carries no ordering among the nodes.
func (r *Remote) PutNodes(ctx context.Context, nodes map[string][]byte) error {
	return r.putJSON(ctx, "tree/nodes", wireproto.NodeBundle{Nodes: nodes}, nil)
}

// MergeAttempt implements PUT branches/{name}/merge, the server-side push
// conflict check (spec.md §4.6 step 2's stronger variant).
func (r *Remote) MergeAttempt(ctx context.Context, name string, req wireproto.MergeAttemptRequest) (wireproto.MergeAttemptResponse, error) {
	var out wireproto.MergeAttemptResponse
	err := r.putJSON(ctx, "branches/"+url.PathEscape(name)+"/merge", req, &out)
	return out, err
}

// chunkFetcher adapts one (commit, path) pair to transport.RangeFetcher
// against GET chunk/{commit}/{path}?chunk_start=&chunk_size=.
type chunkFetcher struct {
	remote *Remote
	commit string
	path   string
}

func (f chunkFetcher) FetchRange(ctx context.Context, start, size int64) ([]byte, error) {
	u := f.remote.url("chunk/%s/%s?chunk_start=%d&chunk_size=%d", f.commit, url.PathEscape(f.path), start, size)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("client: build chunk request: %w", err)
	}
	resp, err := f.remote.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch chunk %s[%d:+%d]: %w", f.path, start, size, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, wireError(resp)
	}
	return io.ReadAll(resp.Body)
}

// chunkPusher adapts one (commit, path) pair to transport.RangePusher
// against PUT chunk/{commit}/{path}?chunk_start=&chunk_size=.
type chunkPusher struct {
	remote *Remote
	commit string
	path   string
}

func (p chunkPusher) PutRange(ctx context.Context, start int64, data []byte) error {
	u := p.remote.url("chunk/%s/%s?chunk_start=%d&chunk_size=%d", p.commit, url.PathEscape(p.path), start, int64(len(data)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("client: build chunk request: %w", err)
	}
	resp, err := p.remote.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: put chunk %s[%d:+%d]: %w", p.path, start, len(data), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return wireError(resp)
	}
	return nil
}

func jsonBody(v any) io.Reader {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return bytes.NewReader(data)
}
