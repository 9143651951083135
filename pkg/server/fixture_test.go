package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/cache"
	"github.com/autodocgen/boarddocs/pkg/credential"
	"github.com/autodocgen/boarddocs/pkg/database"
	"github.com/autodocgen/boarddocs/pkg/dispatch"
	"github.com/autodocgen/boarddocs/pkg/docs"
	"github.com/autodocgen/boarddocs/pkg/generator"
	"github.com/autodocgen/boarddocs/pkg/jobs"
	"github.com/autodocgen/boarddocs/pkg/notify"
	"github.com/autodocgen/boarddocs/pkg/reconcile"
	"github.com/autodocgen/boarddocs/pkg/trello"
)

const testCallback = "https://docs.example.com/pm"

// fakeProvider serves boards per token and records webhook registrations.
type fakeProvider struct {
	mu            sync.Mutex
	boards        map[string][]trello.Board
	hooks         map[string][]trello.Webhook
	boardsErr     error
	registrations []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{boards: map[string][]trello.Board{}, hooks: map[string][]trello.Webhook{}}
}

func (f *fakeProvider) ListBoards(_ context.Context, token string) ([]trello.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boardsErr != nil {
		return nil, f.boardsErr
	}
	return f.boards[token], nil
}

func (f *fakeProvider) ListWebhooks(_ context.Context, token string) ([]trello.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trello.Webhook(nil), f.hooks[token]...), nil
}

func (f *fakeProvider) RegisterWebhook(_ context.Context, token, callbackURL, boardID, _ string) (*trello.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := trello.Webhook{ID: "w-" + boardID, CallbackURL: callbackURL, IDModel: boardID, Active: true}
	f.hooks[token] = append(f.hooks[token], h)
	f.registrations = append(f.registrations, boardID)
	return &h, nil
}

func (f *fakeProvider) GetBoardData(_ context.Context, _, boardID string) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"name":"From Provider"}`, boardID)), nil
}

type fixture struct {
	db       *gorm.DB
	tokens   *credential.Store
	mappings *board.Store
	jobs     *jobs.JobStore
	notes    *notify.Store
	provider *fakeProvider
	server   *Server
	http     *httptest.Server

	generations atomic.Int32
	genFail     atomic.Bool
	wakes       atomic.Int32
}

func newFixture() *fixture {
	f := &fixture{provider: newFakeProvider()}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		panic(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(context.Background(), db, nil); err != nil {
		panic(err)
	}
	f.db = db
	f.tokens = credential.NewStore(db)
	f.mappings = board.NewStore(db)
	f.jobs = jobs.NewJobStore(db)
	f.notes = notify.NewStore(db)

	gen := generator.Func(func(_ context.Context, req generator.Request) (*generator.Result, error) {
		f.generations.Add(1)
		if f.genFail.Load() {
			return nil, errors.New("model overloaded")
		}
		return &generator.Result{
			Document: "# " + req.BoardName + "\n## Overview\n## Risks\n",
			Diagrams: map[string]generator.Diagram{"Overview": {Text: "graph TD; A-->B", Image: []byte{0x89, 'P', 'N', 'G'}}},
		}, nil
	})

	responses := cache.NewResponseCache(&cache.CacheConfig{Enabled: true, MaxSize: 100, BoardsTTL: 60e9})
	docCache := docs.NewCache(docs.NewStore(db), f.tokens, f.mappings, f.provider, gen,
		docs.OnGenerated(func(a *docs.Artifact) { responses.InvalidateOwner(a.OwnerID) }))
	dispatcher := dispatch.NewDispatcher(f.mappings, f.jobs, f.notes,
		dispatch.WithWake(func() { f.wakes.Add(1) }),
		dispatch.WithOwnerHook(responses.InvalidateOwner))
	reconciler := reconcile.NewReconciler(f.tokens, f.mappings, f.provider, testCallback, 0, nil)

	f.server = NewServer(Deps{
		DB:         db,
		Tokens:     f.tokens,
		Provider:   f.provider,
		Reconciler: reconciler,
		Dispatcher: dispatcher,
		Docs:       docCache,
		Jobs:       f.jobs,
		Notes:      f.notes,
		Responses:  responses,
	}, WithOrigins([]string{"http://localhost:5173"}), WithWake(func() { f.wakes.Add(1) }))
	f.server.SetReady(true)
	f.http = httptest.NewServer(f.server.Routes())
	return f
}

func (f *fixture) close() {
	f.http.Close()
}

func (f *fixture) do(method, path string, body any) (int, map[string]any) {
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rdr)
	if err != nil {
		panic(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func webhookBody(boardID string) map[string]any {
	return map[string]any{
		"action": map[string]any{
			"type": "updateCard",
			"data": map[string]any{
				"board": map[string]any{"id": boardID, "name": "Sprint"},
				"card":  map[string]any{"name": "Ship it"},
			},
			"memberCreator": map[string]any{"fullName": "Ada"},
		},
	}
}
