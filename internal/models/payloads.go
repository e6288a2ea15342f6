package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Typed domain payloads. They marshal into Record.Payload; the sync engine
// itself only ever handles the opaque JSON form.

// Note is a single note or markdown document.
type Note struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	FolderID string `json:"folder_id,omitempty"`
	Position int    `json:"position,omitempty"`
	Pinned   bool   `json:"pinned,omitempty"`
}

// Tag is a user-defined label.
type Tag struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Folder groups notes hierarchically.
type Folder struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	Position int    `json:"position,omitempty"`
}

// NoteTag associates a note with a tag.
type NoteTag struct {
	NoteID string `json:"note_id"`
	TagID  string `json:"tag_id"`
}

func (n Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "" {
		return fmt.Errorf("note must have a title or content")
	}
	return nil
}

func (t Tag) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tag name is required")
	}
	return nil
}

func (f Folder) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("folder name is required")
	}
	return nil
}

func (nt NoteTag) Validate() error {
	if nt.NoteID == "" || nt.TagID == "" {
		return fmt.Errorf("note tag requires both note_id and tag_id")
	}
	return nil
}

// MarshalPayload encodes a typed payload for storage in Record.Payload.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload decodes Record.Payload into a typed payload.
func UnmarshalPayload(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
