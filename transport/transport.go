// Package transport defines the wire contract between the sync core and the
// remote service and the Pusher/Puller interfaces the push and pull
// pipelines depend on. The concrete network channel is an external
// collaborator (see httptransport for the bundled HTTP implementation).
package transport

import "context"

// Change is one outgoing mutation in a push request.
type Change struct {
	TableName string         `json:"tableName"`
	Operation string         `json:"operation"`
	RecordID  string         `json:"recordId"`
	Data      map[string]any `json:"data,omitempty"`
}

// PushRequest is the push wire request.
type PushRequest struct {
	Changes []Change `json:"changes"`
}

// PushResult is one positional result entry in a push response.
type PushResult struct {
	RecordID        string  `json:"recordId,omitempty"`
	ServerID        *string `json:"serverId,omitempty"`
	ServerUpdatedAt *int64  `json:"serverUpdatedAt,omitempty"`
	Error           *string `json:"error,omitempty"`
}

// PushResponse is the push wire response. Results must be positional with
// Changes in the originating request.
type PushResponse struct {
	Success bool         `json:"success"`
	Results []PushResult `json:"results"`
}

// PullRequest is the pull wire request.
type PullRequest struct {
	LastSyncAt *int64   `json:"lastSyncAt"`
	Tables     []string `json:"tables"`
}

// Record is a server-side record returned by pull: at least Id and
// UpdatedAt, plus arbitrary domain fields captured in Fields.
type Record struct {
	ID        string
	UpdatedAt int64
	Fields    map[string]any
}

// TableChanges is one table's created/updated/deleted stanza.
type TableChanges struct {
	Created []Record `json:"created"`
	Updated []Record `json:"updated"`
	Deleted []string `json:"deleted"`
}

// PullResponse is the pull wire response.
type PullResponse struct {
	Timestamp int64                   `json:"timestamp"`
	Changes   map[string]TableChanges `json:"changes"`
}

// Pusher sends a batch of local changes to the server.
type Pusher interface {
	Push(ctx context.Context, req PushRequest) (PushResponse, error)
}

// Puller requests server-originated changes since a watermark.
type Puller interface {
	Pull(ctx context.Context, req PullRequest) (PullResponse, error)
}
