package fields

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-collect-sync/internal/models"
)

func TestRegistryFallsBackToDefaultHandler(t *testing.T) {
	r := NewBuiltinRegistry()

	h := r.Handler("latlong")
	require.NotNil(t, h)
	require.False(t, h.HasFiles())

	field := models.Field{ID: 3}
	content := h.OverrideContent(field, models.FieldContent{Content: "old"}, Override{Values: map[string]string{"": "new"}})
	require.Equal(t, "new", content.Content)
	require.Equal(t, int32(3), content.FieldID)
}

func TestNumberHandlerComparesNumerically(t *testing.T) {
	h := NumberHandler{}
	field := models.Field{ID: 1, Name: "Price"}

	require.False(t, h.HasChanged(field, FormInput{"": "1.0"}, models.FieldContent{Content: "1"}))
	require.True(t, h.HasChanged(field, FormInput{"": "2"}, models.FieldContent{Content: "1"}))
}

func TestNumberHandlerValidate(t *testing.T) {
	h := NumberHandler{}
	required := models.Field{ID: 1, Name: "Price", Required: true}

	require.NotEmpty(t, h.Validate(required, nil))
	require.NotEmpty(t, h.Validate(required, []models.FieldMutation{{FieldID: 1, Value: "abc"}}))
	require.Empty(t, h.Validate(required, []models.FieldMutation{{FieldID: 1, Value: "12.5"}}))
}

func TestCheckboxHandlerIgnoresOptionOrderNoise(t *testing.T) {
	h := CheckboxHandler{}
	field := models.Field{ID: 2, Name: "Tags"}

	require.False(t, h.HasChanged(field, FormInput{"": "a##b"}, models.FieldContent{Content: "a## b "}))
	require.True(t, h.HasChanged(field, FormInput{"": "a"}, models.FieldContent{Content: "a##b"}))
}

func TestTextareaHandlerCarriesFormatSubfield(t *testing.T) {
	h := TextareaHandler{}
	field := models.Field{ID: 4, Name: "Notes"}

	muts := h.EditDataFromInput(field, FormInput{"": "<p>hi</p>", "content1": "1"})
	require.Len(t, muts, 2)
	require.Equal(t, "content1", muts[1].Subfield)

	content := h.OverrideContent(field, models.FieldContent{}, Override{
		Values: map[string]string{"": "<p>hi</p>", "content1": "1"},
	})
	require.Equal(t, "<p>hi</p>", content.Content)
	require.Equal(t, "1", content.Content1)
}

func TestFileHandlerValidateRequiresABundle(t *testing.T) {
	h := FileHandler{kind: "file"}
	required := models.Field{ID: 5, Name: "Attachment", Required: true}

	require.NotEmpty(t, h.Validate(required, nil))
	require.NotEmpty(t, h.Validate(required, []models.FieldMutation{{FieldID: 5, Value: `{"online":[]}`}}))
	require.Empty(t, h.Validate(required, []models.FieldMutation{{FieldID: 5, Value: `{"offline":true}`}}))
	require.Empty(t, h.Validate(required, []models.FieldMutation{{FieldID: 5, Value: `{"online":[{"name":"a.png"}]}`}}))
}

func TestFileHandlerOverrideAppendsStagedFiles(t *testing.T) {
	h := FileHandler{kind: "picture"}
	field := models.Field{ID: 5, Name: "Photo"}

	content := h.OverrideContent(field, models.FieldContent{}, Override{
		Values: map[string]string{"": `{"online":[{"name":"kept.png"}],"offline":true}`},
		Files:  []models.FileRef{{Name: "staged.png", Offline: true}},
	})
	require.Len(t, content.Files, 2)
	require.Equal(t, "kept.png", content.Files[0].Name)
	require.True(t, content.Files[1].Offline)
}
