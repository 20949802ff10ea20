// Package wireproto defines the JSON request/response shapes for Oxen's
// wire protocol (spec.md §6.1): branch CRUD plus lock/unlock/sync state,
// commit lookup, missing-node discovery, tree/dir-hash download, chunked
// blob transfer, the small-files "versions" bundle, and server-side merge.
// Both internal/server (the HTTP side) and internal/client (the caller
// side) import this package so the two never drift out of sync.
package wireproto

// BranchInfo is one entry of the branch list/get responses.
type BranchInfo struct {
	Name     string `json:"name"`
	CommitID string `json:"commit_id"`
}

// CreateBranchRequest creates NewName either from an existing branch
// (FromName) or directly at CommitID.
type CreateBranchRequest struct {
	NewName  string `json:"new_name"`
	FromName string `json:"from_name,omitempty"`
	CommitID string `json:"commit_id,omitempty"`
}

// UpdateBranchRequest advances a branch with a compare-and-swap
// precondition (spec.md §4.6 step 5, P10).
type UpdateBranchRequest struct {
	CommitID         string `json:"commit_id"`
	ExpectedCommitID string `json:"expected_commit_id"`
}

// LockStatus answers "is this branch locked" (GET branches/{name}/lock).
type LockStatus struct {
	IsLocked bool   `json:"is_locked"`
	Holder   string `json:"holder,omitempty"`
}

// LatestSyncedCommitResponse answers GET
// branches/{name}/latest_synced_commit. Per the Open Question decision in
// SPEC_FULL.md §2, this is the last commit a push's CAS actually accepted,
// not the branch's in-flight locked value during a push.
type LatestSyncedCommitResponse struct {
	CommitID string `json:"commit_id"`
}

// CommitInfo is the wire shape of a single commit (spec.md §3.2's Commit
// node, flattened to hex strings for JSON).
type CommitInfo struct {
	ID          string   `json:"id"`
	Parents     []string `json:"parents"`
	AuthorName  string   `json:"author_name"`
	AuthorEmail string   `json:"author_email"`
	Message     string   `json:"message"`
	TimestampNS int64    `json:"timestamp_ns"`
	RootHash    string   `json:"root_hash"`
}

// MissingNodesRequest is the body of POST tree/missing: a candidate set of
// node hashes the caller believes it needs.
type MissingNodesRequest struct {
	Hashes []string `json:"hashes"`
}

// MissingNodesResponse is the subset of the request's hashes the remote
// does not have locally (spec.md §4.5: "avoids enumerating the entire tree
// over the wire").
type MissingNodesResponse struct {
	Missing []string `json:"missing"`
}

// NodeBundle is a batch of raw, canonically-encoded node bytes keyed by
// hash, returned by tree/between and tree/from and consumed by tree/missing
// follow-up downloads.
type NodeBundle struct {
	Nodes map[string][]byte `json:"nodes"`
}

// DirHashesResponse is the wire shape of GET commits/{id}/dir_hashes: the
// path -> Directory-hash side index for a commit (spec.md §4.2's "Dir-hashes
// index" design note, restored from original_source per SPEC_FULL.md §2).
type DirHashesResponse struct {
	DirHashes map[string]string `json:"dir_hashes"`
}

// ChunkRequest parameterizes GET/PUT chunk/{commit}/{path}. ChunkStart and
// ChunkSize are byte offsets into the file's content; a whole small file is
// requested with ChunkStart=0 and ChunkSize=0 (meaning "to EOF").
type ChunkRequest struct {
	Commit     string `json:"commit"`
	Path       string `json:"path"`
	ChunkStart int64  `json:"chunk_start"`
	ChunkSize  int64  `json:"chunk_size"`
}

// VersionsRequest is the JSON list of content IDs in the body of POST versions
// (spec.md §6.1's small-files bundle request).
type VersionsRequest struct {
	ContentIDs []string `json:"content_ids"`
}

// VersionsResponse bundles several small blobs' content into one response,
// keyed by content ID (spec.md §4.9: "small entries: group into batches,
// transfer each batch as one request").
type VersionsResponse struct {
	Blobs map[string][]byte `json:"blobs"`
}

// MergeAttemptRequest is the body of PUT branches/{name}/merge: the
// server-side push-conflict check (spec.md §4.6 step 2's stronger variant).
type MergeAttemptRequest struct {
	ClientCommitID string `json:"client_commit_id"`
	ServerCommitID string `json:"server_commit_id"`
}

// MergeAttemptResponse reports whether the server accepted the push outright
// (fast-forward/ancestor), would accept it under the disjoint-tree policy, or
// rejects it with conflicting paths.
type MergeAttemptResponse struct {
	Outcome   string   `json:"outcome"` // "fast_forward", "disjoint_ok", "conflict"
	Conflicts []string `json:"conflicts,omitempty"`
}

// ServerConfigResponse advertises server-side policy a client must not
// assume by default (SPEC_FULL.md §2's Open Question decision: a client
// cannot assume AllowDisjointPush is honored unless the server says so here).
type ServerConfigResponse struct {
	AllowDisjointPush bool `json:"allow_disjoint_push"`
}

// ErrorResponse is the body of any non-2xx response; Kind matches one of
// spec.md §7's error taxonomy names so clients can dispatch on it instead of
// parsing prose.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error kinds, mirrored 1:1 with spec.md §7.
const (
	KindNotFound            = "not_found"
	KindAlreadyExists       = "already_exists"
	KindPreconditionFailed  = "precondition_failed"
	KindConflict            = "conflict"
	KindCorruption          = "corruption"
	KindOutOfScope          = "out_of_scope"
	KindUnauthorized        = "unauthorized"
	KindForbidden           = "forbidden"
	KindTransient           = "transient"
	KindInvalidInput        = "invalid_input"
)
