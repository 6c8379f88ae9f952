// Package dto defines the agent API request and response payloads.
package dto

// FieldInput is raw form input for one field keyed by subfield
// discriminator; the empty key is the primary value.
type FieldInput map[string]string

// AddRecordRequest creates a record in a collection.
type AddRecordRequest struct {
	CourseID int32                `json:"courseId"`
	GroupID  int32                `json:"groupId"`
	Fields   map[int32]FieldInput `json:"fields" binding:"required"`
}

// EditRecordRequest replaces a record's field values.
type EditRecordRequest struct {
	Fields map[int32]FieldInput `json:"fields" binding:"required"`
}

// ApprovalRequest approves or disapproves a record.
type ApprovalRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// EntriesQuery selects a listing page.
type EntriesQuery struct {
	GroupID  int32  `form:"groupId"`
	Page     int    `form:"page"`
	PerPage  int    `form:"perPage"`
	Search   string `form:"search"`
	Advanced bool   `form:"advanced"`
}

// QueueStatus summarises a collection's pending offline work.
type QueueStatus struct {
	CollectionID int32 `json:"collectionId"`
	Pending      int   `json:"pending"`
	Records      int   `json:"records"`
}
