// Package legacy imports data written by the earlier Mongo-backed deployment
// into the relational stores. Imports are idempotent and can be re-run.
package legacy

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/gorm"

	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/credential"
	"github.com/autodocgen/boarddocs/pkg/docs"
	"github.com/autodocgen/boarddocs/pkg/notify"
)

// Report counts what one import run read and wrote.
type Report struct {
	Tokens        Counts `json:"tokens" yaml:"tokens"`
	Boards        Counts `json:"boards" yaml:"boards"`
	Documents     Counts `json:"documents" yaml:"documents"`
	Notifications Counts `json:"notifications" yaml:"notifications"`
}

// Counts is the outcome for one collection.
type Counts struct {
	Read     int `json:"read" yaml:"read"`
	Imported int `json:"imported" yaml:"imported"`
	Skipped  int `json:"skipped" yaml:"skipped"`
}

// Sink is where imported records go.
type Sink struct {
	Tokens        *credential.Store
	Mappings      *board.Store
	Artifacts     *docs.Store
	Notifications *notify.Store
}

// NewSink builds a Sink over db.
func NewSink(db *gorm.DB) Sink {
	return Sink{
		Tokens:        credential.NewStore(db),
		Mappings:      board.NewStore(db),
		Artifacts:     docs.NewStore(db),
		Notifications: notify.NewStore(db),
	}
}

// Importer copies the Mongo collections into a Sink.
type Importer struct {
	db     *mongo.Database
	sink   Sink
	logger *slog.Logger
}

// Connect opens a Mongo client for uri.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewImporter creates an Importer reading database dbName.
func NewImporter(client *mongo.Client, dbName string, sink Sink, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{db: client.Database(dbName), sink: sink, logger: logger}
}

// Run imports every collection. Tokens go first since later rows refer to
// their owners. A failing collection stops the run.
func (im *Importer) Run(ctx context.Context) (*Report, error) {
	var (
		r   Report
		err error
	)
	if r.Tokens, err = im.importTokens(ctx); err != nil {
		return &r, err
	}
	if r.Boards, err = im.importBoards(ctx); err != nil {
		return &r, err
	}
	if r.Documents, err = im.importDocuments(ctx); err != nil {
		return &r, err
	}
	if r.Notifications, err = im.importNotifications(ctx); err != nil {
		return &r, err
	}
	im.logger.Info("legacy import finished",
		"tokens", r.Tokens.Imported,
		"boards", r.Boards.Imported,
		"documents", r.Documents.Imported,
		"notifications", r.Notifications.Imported)
	return &r, nil
}

// each decodes every document of collection into T and hands it to fn.
func each[T any](ctx context.Context, db *mongo.Database, collection string, fn func(T) error) (int, error) {
	cursor, err := db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	n := 0
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return n, fmt.Errorf("decode %s document: %w", collection, err)
		}
		n++
		if err := fn(doc); err != nil {
			return n, err
		}
	}
	return n, cursor.Err()
}

// importCollection feeds every document of collection to apply, counting
// what apply reports as written.
func importCollection[T any](ctx context.Context, db *mongo.Database, collection string, apply func(context.Context, T) (bool, error)) (Counts, error) {
	var c Counts
	read, err := each(ctx, db, collection, func(d T) error {
		written, err := apply(ctx, d)
		if err != nil {
			return err
		}
		if written {
			c.Imported++
		} else {
			c.Skipped++
		}
		return nil
	})
	c.Read = read
	return c, err
}

func (im *Importer) importTokens(ctx context.Context) (Counts, error) {
	return importCollection(ctx, im.db, TokensCollection, im.sink.ApplyToken)
}

func (im *Importer) importBoards(ctx context.Context) (Counts, error) {
	return importCollection(ctx, im.db, BoardMapCollection, im.sink.ApplyBoard)
}

func (im *Importer) importDocuments(ctx context.Context) (Counts, error) {
	return importCollection(ctx, im.db, GeneratedDocsCollection, im.sink.ApplyDocument)
}

func (im *Importer) importNotifications(ctx context.Context) (Counts, error) {
	return importCollection(ctx, im.db, NotificationsCollection, im.sink.ApplyNotification)
}

// ApplyToken stores one token document.
func (s Sink) ApplyToken(ctx context.Context, d TokenDoc) (bool, error) {
	if d.UserID == "" || d.TrelloToken == "" {
		return false, nil
	}
	if err := s.Tokens.Save(ctx, d.UserID, d.TrelloToken); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyBoard stores one board mapping document.
func (s Sink) ApplyBoard(ctx context.Context, d BoardMapDoc) (bool, error) {
	m, ok := ToMapping(d)
	if !ok {
		return false, nil
	}
	if err := s.Mappings.Upsert(ctx, m); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyDocument stores one generated document unless its key is taken.
func (s Sink) ApplyDocument(ctx context.Context, d GeneratedDoc) (bool, error) {
	a, ok := ToArtifact(d)
	if !ok {
		return false, nil
	}
	stored, err := s.Artifacts.Insert(ctx, a)
	if err != nil {
		return false, err
	}
	// Insert hands back the existing row when the key is already taken.
	return stored == a, nil
}

// ApplyNotification stores one notification unless it was imported before.
func (s Sink) ApplyNotification(ctx context.Context, d NotificationDoc) (bool, error) {
	n, ok := ToNotification(d)
	if !ok {
		return false, nil
	}
	return s.Notifications.Restore(ctx, n)
}
