package models

// FileRef points at one attached file, either already on the server or
// staged locally while its action waits in the queue.
type FileRef struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Offline bool   `json:"offline,omitempty"`
}

// FieldContent is the value bundle of one field for one record. The shape
// is owned by the field-type handler; the engine treats it as opaque except
// for override dispatch.
type FieldContent struct {
	FieldID  int32     `json:"fieldId"`
	Content  string    `json:"content"`
	Content1 string    `json:"content1,omitempty"`
	Content2 string    `json:"content2,omitempty"`
	Content3 string    `json:"content3,omitempty"`
	Content4 string    `json:"content4,omitempty"`
	Files    []FileRef `json:"files,omitempty"`
}

// Record is one row of structured data within a collection, remote or
// offline-only. Negative IDs denote records created offline whose true
// identity is unknown until their Add action is accepted remotely.
type Record struct {
	ID                int64                  `json:"id"`
	CollectionID      int32                  `json:"collectionId"`
	GroupID           int32                  `json:"groupId"`
	Approved          bool                   `json:"approved"`
	Deleted           bool                   `json:"deleted"`
	OwnerUserID       int64                  `json:"ownerUserId"`
	CreatedAt         int64                  `json:"createdAt"`
	ModifiedAt        int64                  `json:"modifiedAt"`
	Contents          map[int32]FieldContent `json:"contents"`
	HasPendingOffline bool                   `json:"hasPendingOffline"`
}

// Clone returns a deep copy so projection never mutates its input.
func (r Record) Clone() Record {
	out := r
	out.Contents = make(map[int32]FieldContent, len(r.Contents))
	for id, content := range r.Contents {
		files := make([]FileRef, len(content.Files))
		copy(files, content.Files)
		content.Files = files
		out.Contents[id] = content
	}
	return out
}

// Field is a typed column definition within a collection's schema.
type Field struct {
	ID       int32  `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Collection is the parent container holding records and a field schema.
type Collection struct {
	ID             int32   `json:"id"`
	CourseID       int32   `json:"courseId"`
	Name           string  `json:"name"`
	Approval       bool    `json:"approval"`
	ManageApproved bool    `json:"manageApproved"`
	Fields         []Field `json:"fields"`
}

// DefaultApproved reports whether a freshly created record counts as
// approved under the collection's approval settings.
func (c Collection) DefaultApproved() bool {
	return !c.Approval || c.ManageApproved
}

// FieldByID looks a schema field up, reporting whether it exists.
func (c Collection) FieldByID(id int32) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
