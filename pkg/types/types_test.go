package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchMode
		wantErr bool
	}{
		{"", ModeHybrid, false},
		{"hybrid", ModeHybrid, false},
		{" Text ", ModeText, false},
		{"semantic", ModeSemantic, false},
		{"vector", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSearchMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchMode_Branches(t *testing.T) {
	assert.True(t, ModeHybrid.UsesSemantic())
	assert.True(t, ModeHybrid.UsesLexical())
	assert.True(t, ModeSemantic.UsesSemantic())
	assert.False(t, ModeSemantic.UsesLexical())
	assert.False(t, ModeText.UsesSemantic())
	assert.True(t, ModeText.UsesLexical())
}

func TestSearchResult_Validate(t *testing.T) {
	valid := func() SearchResult {
		return SearchResult{
			Message: Message{ID: "m1", User: UserSummary{ID: "u1"}},
			Chat:    ChatSummary{ID: "c1"},
		}
	}

	r := valid()
	assert.NoError(t, r.Validate())

	r = valid()
	r.Message.ID = ""
	assert.ErrorIs(t, r.Validate(), ErrInvalidMessageID)

	r = valid()
	r.Message.User.ID = ""
	assert.ErrorIs(t, r.Validate(), ErrMissingSender)

	r = valid()
	r.Chat.ID = ""
	assert.ErrorIs(t, r.Validate(), ErrMissingChat)

	r = valid()
	bad := 1.5
	r.Similarity = &bad
	assert.ErrorIs(t, r.Validate(), ErrInvalidScore)

	r = valid()
	r.MatchedField = "subject"
	assert.ErrorIs(t, r.Validate(), ErrInvalidField)
}
