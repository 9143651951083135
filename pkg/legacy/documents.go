package legacy

import (
	"encoding/base64"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gorm.io/datatypes"

	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/docs"
	"github.com/autodocgen/boarddocs/pkg/generator"
	"github.com/autodocgen/boarddocs/pkg/jobs"
	"github.com/autodocgen/boarddocs/pkg/notify"
)

// Collection names of the Mongo deployment.
const (
	TokensCollection        = "tokens"
	BoardMapCollection      = "board_user_map"
	GeneratedDocsCollection = "generated_docs"
	NotificationsCollection = "notifications"
)

// TokenDoc is a document of the tokens collection.
type TokenDoc struct {
	UserID      string `bson:"user_id"`
	TrelloToken string `bson:"trello_token"`
}

// BoardMapDoc is a document of the board_user_map collection.
type BoardMapDoc struct {
	BoardID   string `bson:"board_id"`
	UserID    string `bson:"user_id"`
	BoardName string `bson:"board_name"`
	BoardDesc string `bson:"board_desc"`
}

// DiagramDoc holds a diagram with its PNG as base64 text.
type DiagramDoc struct {
	Diagram string `bson:"diagram"`
	Image   string `bson:"image,omitempty"`
}

// GeneratedDoc is a document of the generated_docs collection. created_at
// was written both as a BSON date and as a string.
type GeneratedDoc struct {
	ID                bson.ObjectID         `bson:"_id"`
	UserID            string                `bson:"user_id"`
	ProjectID         string                `bson:"project_id"`
	TemplateName      string                `bson:"template_name"`
	GeneratedDocs     string                `bson:"generated_docs"`
	GeneratedDiagrams map[string]DiagramDoc `bson:"generated_diagrams"`
	BoardName         string                `bson:"board_name"`
	CreatedAt         any                   `bson:"created_at"`
}

// NotificationDoc is a document of the notifications collection.
type NotificationDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	UserID    string        `bson:"user_id"`
	BoardID   string        `bson:"board_id"`
	BoardName string        `bson:"board_name"`
	EventType string        `bson:"event_type"`
	CardName  string        `bson:"card_name"`
	Changes   struct {
		User string `bson:"user"`
	} `bson:"changes"`
	Timestamp any `bson:"timestamp"`
}

// ToMapping converts a board_user_map document. ok is false for documents
// without a board or owner.
func ToMapping(d BoardMapDoc) (m *board.BoardMapping, ok bool) {
	if d.BoardID == "" || d.UserID == "" {
		return nil, false
	}
	return &board.BoardMapping{
		BoardID:   d.BoardID,
		OwnerID:   d.UserID,
		BoardName: d.BoardName,
		BoardDesc: d.BoardDesc,
	}, true
}

// ToArtifact converts a generated_docs document. Images are decoded back to
// bytes; one that is not valid base64 is dropped and the diagram text kept.
func ToArtifact(d GeneratedDoc) (a *docs.Artifact, ok bool) {
	if d.UserID == "" || d.ProjectID == "" {
		return nil, false
	}
	template := d.TemplateName
	if template == "" {
		template = jobs.DefaultTemplate
	}

	diagrams := make(map[string]generator.Diagram, len(d.GeneratedDiagrams))
	for heading, dd := range d.GeneratedDiagrams {
		diagrams[heading] = generator.Diagram{Text: dd.Diagram, Image: decodeImage(dd.Image)}
	}

	a = &docs.Artifact{
		OwnerID:      d.UserID,
		ProjectID:    d.ProjectID,
		TemplateName: template,
		DocumentText: d.GeneratedDocs,
		Diagrams:     datatypes.NewJSONType(diagrams),
		BoardName:    d.BoardName,
		CreatedAt:    parseTime(d.CreatedAt),
	}
	if !d.ID.IsZero() {
		a.ID = d.ID.Hex()
	}
	return a, true
}

// ToNotification converts a notifications document.
func ToNotification(d NotificationDoc) (n *notify.Notification, ok bool) {
	if d.ID.IsZero() || d.UserID == "" {
		return nil, false
	}
	return &notify.Notification{
		ID:        d.ID.Hex(),
		OwnerID:   d.UserID,
		BoardID:   d.BoardID,
		BoardName: d.BoardName,
		EventType: d.EventType,
		CardName:  d.CardName,
		ActorName: d.Changes.User,
		CreatedAt: parseTime(d.Timestamp),
	}, true
}

func decodeImage(s string) []byte {
	s = strings.TrimPrefix(s, "data:image/png;base64,")
	if s == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTime accepts BSON dates and the string forms the Mongo writers used.
// Anything else maps to the zero time, which the stores replace with now.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}
