package fields

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-collect-sync/internal/models"
)

var validate = validator.New()

// TextHandler serves single-line text fields.
type TextHandler struct{}

func (TextHandler) Type() string   { return "text" }
func (TextHandler) HasFiles() bool { return false }

func (TextHandler) EditDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	return []models.FieldMutation{{FieldID: field.ID, Value: input[""]}}
}

func (TextHandler) SearchDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	if v := strings.TrimSpace(input[""]); v != "" {
		return []models.FieldMutation{{FieldID: field.ID, Value: v}}
	}
	return nil
}

func (TextHandler) HasChanged(_ models.Field, input FormInput, original models.FieldContent) bool {
	return input[""] != original.Content
}

func (TextHandler) OverrideContent(field models.Field, original models.FieldContent, override Override) models.FieldContent {
	out := original
	if v, ok := override.Values[""]; ok {
		out.Content = v
	}
	out.FieldID = field.ID
	return out
}

func (TextHandler) Validate(field models.Field, edit []models.FieldMutation) string {
	return requiredMessage(field, primaryValue(edit))
}

// TextareaHandler serves multi-line rich text; content1 carries the format.
type TextareaHandler struct{}

func (TextareaHandler) Type() string   { return "textarea" }
func (TextareaHandler) HasFiles() bool { return false }

func (TextareaHandler) EditDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	muts := []models.FieldMutation{{FieldID: field.ID, Value: input[""]}}
	if format, ok := input["content1"]; ok {
		muts = append(muts, models.FieldMutation{FieldID: field.ID, Subfield: "content1", Value: format})
	}
	return muts
}

func (TextareaHandler) SearchDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	if v := strings.TrimSpace(input[""]); v != "" {
		return []models.FieldMutation{{FieldID: field.ID, Value: v}}
	}
	return nil
}

func (TextareaHandler) HasChanged(_ models.Field, input FormInput, original models.FieldContent) bool {
	return input[""] != original.Content
}

func (TextareaHandler) OverrideContent(field models.Field, original models.FieldContent, override Override) models.FieldContent {
	out := original
	if v, ok := override.Values[""]; ok {
		out.Content = v
	}
	if v, ok := override.Values["content1"]; ok {
		out.Content1 = v
	}
	out.FieldID = field.ID
	return out
}

func (TextareaHandler) Validate(field models.Field, edit []models.FieldMutation) string {
	return requiredMessage(field, primaryValue(edit))
}

// NumberHandler serves numeric fields; comparison is numeric so "1.0" and
// "1" do not count as a change.
type NumberHandler struct{}

func (NumberHandler) Type() string   { return "number" }
func (NumberHandler) HasFiles() bool { return false }

func (NumberHandler) EditDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	return []models.FieldMutation{{FieldID: field.ID, Value: strings.TrimSpace(input[""])}}
}

func (NumberHandler) SearchDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	if v := strings.TrimSpace(input[""]); v != "" {
		return []models.FieldMutation{{FieldID: field.ID, Value: v}}
	}
	return nil
}

func (NumberHandler) HasChanged(_ models.Field, input FormInput, original models.FieldContent) bool {
	a, errA := strconv.ParseFloat(strings.TrimSpace(input[""]), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(original.Content), 64)
	if errA != nil || errB != nil {
		return input[""] != original.Content
	}
	return a != b
}

func (NumberHandler) OverrideContent(field models.Field, original models.FieldContent, override Override) models.FieldContent {
	out := original
	if v, ok := override.Values[""]; ok {
		out.Content = v
	}
	out.FieldID = field.ID
	return out
}

func (NumberHandler) Validate(field models.Field, edit []models.FieldMutation) string {
	value := primaryValue(edit)
	if msg := requiredMessage(field, value); msg != "" {
		return msg
	}
	if value != "" {
		if err := validate.Var(value, "numeric"); err != nil {
			return field.Name + " must be a number"
		}
	}
	return ""
}

// CheckboxHandler serves multi-select checkbox fields; selected options are
// joined with "##" in the stored content.
type CheckboxHandler struct{}

func (CheckboxHandler) Type() string   { return "checkbox" }
func (CheckboxHandler) HasFiles() bool { return false }

func (CheckboxHandler) EditDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	return []models.FieldMutation{{FieldID: field.ID, Value: input[""]}}
}

func (CheckboxHandler) SearchDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	if v := input[""]; v != "" {
		muts := []models.FieldMutation{{FieldID: field.ID, Value: v}}
		if all, ok := input["allrequired"]; ok && all != "" {
			muts = append(muts, models.FieldMutation{FieldID: field.ID, Subfield: "allrequired", Value: all})
		}
		return muts
	}
	return nil
}

func (CheckboxHandler) HasChanged(_ models.Field, input FormInput, original models.FieldContent) bool {
	return normalizeOptions(input[""]) != normalizeOptions(original.Content)
}

func (CheckboxHandler) OverrideContent(field models.Field, original models.FieldContent, override Override) models.FieldContent {
	out := original
	if v, ok := override.Values[""]; ok {
		out.Content = v
	}
	out.FieldID = field.ID
	return out
}

func (CheckboxHandler) Validate(field models.Field, edit []models.FieldMutation) string {
	return requiredMessage(field, primaryValue(edit))
}

// FileBundle is the serialized value of a file-aware mutation: files already
// on the server plus a marker for files staged locally.
type FileBundle struct {
	Online  []models.FileRef `json:"online,omitempty"`
	Offline bool             `json:"offline,omitempty"`
}

// FileHandler serves file and picture fields. The stored value is a
// FileBundle; staged files are resolved by the caller and passed through
// Override.Files.
type FileHandler struct {
	kind string
}

func (h FileHandler) Type() string { return h.kind }

func (FileHandler) HasFiles() bool { return true }

func (h FileHandler) EditDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	return []models.FieldMutation{{FieldID: field.ID, Value: input[""]}}
}

func (FileHandler) SearchDataFromInput(field models.Field, input FormInput) []models.FieldMutation {
	if v := strings.TrimSpace(input[""]); v != "" {
		return []models.FieldMutation{{FieldID: field.ID, Value: v}}
	}
	return nil
}

func (FileHandler) HasChanged(_ models.Field, input FormInput, original models.FieldContent) bool {
	var bundle FileBundle
	if err := json.Unmarshal([]byte(input[""]), &bundle); err != nil {
		return input[""] != original.Content
	}
	if bundle.Offline {
		return true
	}
	if len(bundle.Online) != len(original.Files) {
		return true
	}
	for i, ref := range bundle.Online {
		if ref.Name != original.Files[i].Name {
			return true
		}
	}
	return false
}

func (FileHandler) OverrideContent(field models.Field, original models.FieldContent, override Override) models.FieldContent {
	out := original
	if raw, ok := override.Values[""]; ok && raw != "" {
		var bundle FileBundle
		if err := json.Unmarshal([]byte(raw), &bundle); err == nil {
			out.Files = bundle.Online
		} else {
			out.Content = raw
		}
	}
	if len(override.Files) > 0 {
		out.Files = append(out.Files, override.Files...)
	}
	out.FieldID = field.ID
	return out
}

func (FileHandler) Validate(field models.Field, edit []models.FieldMutation) string {
	raw := primaryValue(edit)
	if !field.Required {
		return ""
	}
	var bundle FileBundle
	if raw == "" || json.Unmarshal([]byte(raw), &bundle) != nil {
		return field.Name + " is required"
	}
	if len(bundle.Online) == 0 && !bundle.Offline {
		return field.Name + " is required"
	}
	return ""
}

func primaryValue(edit []models.FieldMutation) string {
	for _, m := range edit {
		if m.Subfield == "" {
			return m.Value
		}
	}
	return ""
}

func requiredMessage(field models.Field, value string) string {
	if field.Required && strings.TrimSpace(value) == "" {
		return field.Name + " is required"
	}
	return ""
}

func normalizeOptions(raw string) string {
	parts := strings.Split(raw, "##")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "##")
}
