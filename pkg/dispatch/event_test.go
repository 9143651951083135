package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

const cardMoved = `{
	"action": {
		"type": "updateCard",
		"data": {
			"board": {"id": "b1", "name": "Sprint"},
			"card": {"id": "c1", "name": "Ship it"},
			"listBefore": {"name": "Doing"},
			"listAfter": {"name": "Done"}
		},
		"memberCreator": {"fullName": "Ada Lovelace"}
	},
	"model": {"id": "b1"}
}`

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(cardMoved))
	require.NoError(t, err)

	assert.Equal(t, "updateCard", ev.Type)
	assert.Equal(t, "b1", ev.BoardID)
	assert.Equal(t, "Sprint", ev.BoardName)
	assert.Equal(t, "Ship it", ev.CardName)
	assert.Equal(t, "Doing", ev.ListBefore)
	assert.Equal(t, "Done", ev.ListAfter)
	assert.Equal(t, "Ada Lovelace", ev.ActorName)
	assert.JSONEq(t, cardMoved, string(ev.Raw))
}

func TestParseEventDefaultsType(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"action":{"data":{"board":{"id":"b1"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown", ev.Type)
}

func TestParseEventRejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		noBoard bool
	}{
		{"not json", `{{{`, false},
		{"empty body", ``, false},
		{"array", `[]`, false},
		{"null", `null`, false},
		{"action not an object", `{"action":"updateCard"}`, false},
		{"board id not a string", `{"action":{"data":{"board":{"id":42}}}}`, false},
		{"empty board id", `{"action":{"data":{"board":{"id":""}}}}`, false},
		{"no action", `{"model":{"id":"b1"}}`, true},
		{"no board", `{"action":{"type":"createCard","data":{}}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tt.noBoard, errors.Is(err, ErrNoBoard))
		})
	}
}
