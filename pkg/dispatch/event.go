// Package dispatch turns inbound board webhooks into generation jobs and
// notifications for every owner of the board.
package dispatch

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

//go:embed event.schema.json
var eventSchemaJSON []byte

const eventSchemaURL = "event.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func eventSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(eventSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse event schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(eventSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add event schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(eventSchemaURL)
	})
	return schema, schemaErr
}

// ErrNoBoard reports a well-formed event that names no board.
var ErrNoBoard = errors.New("event has no board id")

// Event is the part of a webhook payload the service acts on.
type Event struct {
	Type       string
	BoardID    string
	BoardName  string
	CardName   string
	ListBefore string
	ListAfter  string
	ActorName  string
	Raw        json.RawMessage
}

type named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireEvent struct {
	Action *struct {
		Type string `json:"type"`
		Data struct {
			Board      named `json:"board"`
			Card       named `json:"card"`
			ListBefore named `json:"listBefore"`
			ListAfter  named `json:"listAfter"`
		} `json:"data"`
		MemberCreator struct {
			FullName string `json:"fullName"`
		} `json:"memberCreator"`
	} `json:"action"`
}

// ParseEvent validates and decodes a webhook body. Every failure is an
// apperr validation error; an event without a board wraps ErrNoBoard.
func ParseEvent(body []byte) (Event, error) {
	const op = "dispatch.parse_event"

	sch, err := eventSchema()
	if err != nil {
		return Event{}, apperr.Validation(op, err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return Event{}, apperr.Validation(op, fmt.Errorf("malformed body: %w", err))
	}
	if err := sch.Validate(inst); err != nil {
		return Event{}, apperr.Validation(op, err)
	}

	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, apperr.Validation(op, err)
	}
	if w.Action == nil || w.Action.Data.Board.ID == "" {
		return Event{}, apperr.Validation(op, ErrNoBoard)
	}

	a := w.Action
	ev := Event{
		Type:       a.Type,
		BoardID:    a.Data.Board.ID,
		BoardName:  a.Data.Board.Name,
		CardName:   a.Data.Card.Name,
		ListBefore: a.Data.ListBefore.Name,
		ListAfter:  a.Data.ListAfter.Name,
		ActorName:  a.MemberCreator.FullName,
		Raw:        json.RawMessage(body),
	}
	if ev.Type == "" {
		ev.Type = "unknown"
	}
	return ev, nil
}
