package models

// Warning describes queued work that could not be applied and was dropped.
type Warning struct {
	CollectionID int32  `json:"collectionId"`
	RecordID     int64  `json:"recordId,omitempty"`
	Message      string `json:"message"`
}

// RecordChanged fires on every local queue mutation or successful
// reconciliation step so views can refresh.
type RecordChanged struct {
	CollectionID int32 `json:"collectionId"`
	RecordID     int64 `json:"recordId,omitempty"`
	Deleted      bool  `json:"deleted,omitempty"`
}

// AutoSynced fires once per record after a reconciliation pass. When a
// server ID replaced a negative placeholder, OfflineRecordID carries the
// old identity.
type AutoSynced struct {
	CollectionID    int32     `json:"collectionId"`
	RecordID        int64     `json:"recordId,omitempty"`
	OfflineRecordID int64     `json:"offlineRecordId,omitempty"`
	Deleted         bool      `json:"deleted,omitempty"`
	Warnings        []Warning `json:"warnings"`
}

// SyncResult aggregates a reconciliation pass over one collection.
type SyncResult struct {
	Updated  bool      `json:"updated"`
	Warnings []Warning `json:"warnings"`
}

// Pagination carries page metadata in API responses.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalCount int64 `json:"totalCount"`
}
