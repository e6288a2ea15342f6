package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityTypeValid(t *testing.T) {
	for _, et := range EntityTypes {
		assert.True(t, et.Valid(), string(et))
	}
	assert.False(t, EntityType("attachments").Valid())
	assert.False(t, EntityType("").Valid())
}

func TestPayloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{ Validate() error }
		wantErr bool
	}{
		{"note with title", Note{Title: "x"}, false},
		{"note with content only", Note{Content: "body"}, false},
		{"empty note", Note{Title: "  "}, true},
		{"tag", Tag{Name: "work"}, false},
		{"blank tag", Tag{Name: " "}, true},
		{"folder", Folder{Name: "inbox"}, false},
		{"blank folder", Folder{}, true},
		{"note tag", NoteTag{NoteID: "n", TagID: "t"}, false},
		{"half note tag", NoteTag{NoteID: "n"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := Note{Title: "title", Content: "content", FolderID: "f1", Position: 2, Pinned: true}
	data, err := MarshalPayload(in)
	require.NoError(t, err)

	var out Note
	require.NoError(t, UnmarshalPayload(data, &out))
	assert.Equal(t, in, out)
}
