// Package fields keeps the engine open over field semantics. Field types
// are pluggable; each registers one Handler and everything else dispatches
// through the registry, falling back to a total default handler so an
// unregistered type is never an error.
package fields

import (
	"sync"

	"github.com/noah-isme/sma-collect-sync/internal/models"
)

// FormInput is the raw form input for one field, keyed by subfield
// discriminator. The empty key is the primary value.
type FormInput map[string]string

// Override carries the decoded offline values for one field, plus any
// locally staged files for file-aware handlers.
type Override struct {
	Values map[string]string
	Files  []models.FileRef
}

// Handler is the capability set one field type supplies.
type Handler interface {
	// Type returns the field-type tag the handler serves.
	Type() string
	// HasFiles reports whether the type stores file attachments, which
	// makes projection resolve staged files before overriding.
	HasFiles() bool
	// EditDataFromInput shapes raw form input into queued mutations.
	EditDataFromInput(field models.Field, input FormInput) []models.FieldMutation
	// SearchDataFromInput shapes raw form input into search criteria.
	SearchDataFromInput(field models.Field, input FormInput) []models.FieldMutation
	// HasChanged compares raw input against the stored content.
	HasChanged(field models.Field, input FormInput, original models.FieldContent) bool
	// OverrideContent folds an offline mutation onto the stored content.
	OverrideContent(field models.Field, original models.FieldContent, override Override) models.FieldContent
	// Validate returns a human-readable message when the input cannot be
	// queued (for example a required field left empty), or "".
	Validate(field models.Field, edit []models.FieldMutation) string
}

// Registry maps field-type tags to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry returns an empty registry whose lookups fall back to the
// default handler.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		fallback: defaultHandler{},
	}
}

// NewBuiltinRegistry returns a registry with the builtin handlers installed.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.Register(TextHandler{})
	r.Register(TextareaHandler{})
	r.Register(NumberHandler{})
	r.Register(CheckboxHandler{})
	r.Register(FileHandler{kind: "file"})
	r.Register(FileHandler{kind: "picture"})
	return r
}

// Register installs a handler for its type, replacing any previous one.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Handler resolves the handler for a field type. Unknown types resolve to
// the default handler, never nil.
func (r *Registry) Handler(fieldType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[fieldType]; ok {
		return h
	}
	return r.fallback
}

// defaultHandler is the total fallback: success with empty results, and an
// override that takes the offline values verbatim.
type defaultHandler struct{}

func (defaultHandler) Type() string   { return "" }
func (defaultHandler) HasFiles() bool { return false }

func (defaultHandler) EditDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	if v, ok := input[""]; ok {
		return []models.FieldMutation{{FieldID: field.ID, Value: v}}
	}
	return nil
}

func (defaultHandler) SearchDataFromInput(models.Field, FormInput) []models.FieldMutation {
	return nil
}

func (defaultHandler) HasChanged(_ models.Field, input FormInput, original models.FieldContent) bool {
	return input[""] != original.Content
}

func (defaultHandler) OverrideContent(field models.Field, original models.FieldContent, override Override) models.FieldContent {
	out := original
	if v, ok := override.Values[""]; ok {
		out.Content = v
	}
	out.FieldID = field.ID
	return out
}

func (defaultHandler) Validate(field models.Field, edit []models.FieldMutation) string {
	return ""
}
