package storage

import "time"

const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
)

// Upload is one accepted dataset replacement on the file host.
type Upload struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Client     string    `json:"client,omitempty"`
	Rows       int       `json:"rows"`
	Bytes      int       `json:"bytes"`
	// Backup is the file name the previous dataset was rotated to, if any.
	Backup string `json:"backup,omitempty"`

	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// Change captures a single record change between two consecutive uploads.
type Change struct {
	UploadID   int64     `json:"upload_id"`
	OccurredAt time.Time `json:"occurred_at"`

	RowIndex   int    `json:"row_index"`
	Title      string `json:"title"`
	ChangeType string `json:"change_type"` // added | updated | removed
	// Columns lists the changed columns of an update.
	Columns []string `json:"columns,omitempty"`
}

// ChangeQuery filters ListChanges.
type ChangeQuery struct {
	Title      string
	ChangeType string
	Since      time.Time
	Limit      int
}
