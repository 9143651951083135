// Package docs is the document cache: generated artifacts keyed by
// (owner, project, template), produced at most once per key.
package docs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/autodocgen/boarddocs/pkg/apperr"
	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/cache"
	"github.com/autodocgen/boarddocs/pkg/generator"
	"github.com/autodocgen/boarddocs/pkg/jobs"
)

// UnknownBoard is shown when an artifact has no stored board name.
const UnknownBoard = "Unknown Board"

var headingPattern = regexp.MustCompile(`##\s*(.+)`)

// TokenLookup resolves an owner's provider credential.
type TokenLookup interface {
	Get(ctx context.Context, ownerID string) (string, error)
}

// MappingLookup resolves board display metadata.
type MappingLookup interface {
	Get(ctx context.Context, boardID string) (*board.BoardMapping, error)
}

// BoardSource fetches raw board contents.
type BoardSource interface {
	GetBoardData(ctx context.Context, token, boardID string) (json.RawMessage, error)
}

// DiagramView is a diagram as returned to API callers.
type DiagramView struct {
	Diagram string `json:"diagram"`
	Image   string `json:"image,omitempty"`
}

// View is the presentation of an artifact.
type View struct {
	ID           string                 `json:"id"`
	ProjectID    string                 `json:"project_id"`
	TemplateName string                 `json:"template_name"`
	Document     string                 `json:"generated_docs"`
	Diagrams     map[string]DiagramView `json:"generated_diagrams"`
	BoardName    string                 `json:"board_name"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Present converts a stored artifact for display. Images are stored as raw
// bytes and only encoded as data URIs here.
func Present(a *Artifact) *View {
	v := &View{
		ID:           a.ID,
		ProjectID:    a.ProjectID,
		TemplateName: a.TemplateName,
		Document:     a.DocumentText,
		Diagrams:     map[string]DiagramView{},
		BoardName:    a.BoardName,
		CreatedAt:    a.CreatedAt,
	}
	if v.BoardName == "" {
		v.BoardName = UnknownBoard
	}
	for heading, d := range a.Diagrams.Data() {
		dv := DiagramView{Diagram: d.Text}
		if len(d.Image) > 0 {
			dv.Image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(d.Image)
		}
		v.Diagrams[heading] = dv
	}
	return v
}

// Cache serves artifacts, generating on a miss.
type Cache struct {
	store    *Store
	tokens   TokenLookup
	mappings MappingLookup
	boards   BoardSource
	gen      generator.Generator
	locker   Locker
	lru      *cache.LRU[*Artifact]
	group    singleflight.Group
	timeout  time.Duration
	logger   *slog.Logger

	onGenerated func(a *Artifact)
}

// Option configures a Cache.
type Option func(*Cache)

// WithLocker adds cross-replica exclusion around generation.
func WithLocker(l Locker) Option {
	return func(c *Cache) { c.locker = l }
}

// WithLRU keeps recently served artifacts in memory.
func WithLRU(lru *cache.LRU[*Artifact]) Option {
	return func(c *Cache) { c.lru = lru }
}

// WithTimeout bounds a single generation.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// OnGenerated registers a hook run after a new artifact is stored.
func OnGenerated(fn func(a *Artifact)) Option {
	return func(c *Cache) { c.onGenerated = fn }
}

// NewCache creates a Cache.
func NewCache(store *Store, tokens TokenLookup, mappings MappingLookup, boards BoardSource, gen generator.Generator, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		tokens:   tokens,
		mappings: mappings,
		boards:   boards,
		gen:      gen,
		locker:   NoopLocker{},
		timeout:  5 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a cached artifact without generating. A miss is
// apperr.ErrNotFound.
func (c *Cache) Get(ctx context.Context, key Key) (*View, error) {
	key = key.Normalize()
	a, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return Present(a), nil
}

// GetOrGenerate returns the artifact for key, generating it on a miss. At most
// one generation per key runs in this process; concurrent callers share its
// result. Failures are not cached.
func (c *Cache) GetOrGenerate(ctx context.Context, key Key) (*View, error) {
	key = key.Normalize()
	if key.OwnerID == "" || key.ProjectID == "" {
		return nil, apperr.Validationf("docs.get_or_generate", "user_id and project_id are required")
	}

	a, err := c.lookup(ctx, key)
	if err == nil {
		return Present(a), nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	// The shared call must not die with whichever caller arrived first.
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.generate(context.WithoutCancel(ctx), key)
	})
	select {
	case <-ctx.Done():
		return nil, apperr.Generation("docs.get_or_generate", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return Present(res.Val.(*Artifact)), nil
	}
}

func (c *Cache) lookup(ctx context.Context, key Key) (*Artifact, error) {
	if c.lru != nil {
		if a, ok := c.lru.Get(key.String()); ok {
			return a, nil
		}
	}
	a, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.remember(a)
	return a, nil
}

func (c *Cache) remember(a *Artifact) {
	if c.lru != nil {
		c.lru.Set(a.Key().String(), a)
	}
}

func (c *Cache) generate(ctx context.Context, key Key) (*Artifact, error) {
	const op = "docs.generate"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// A previous flight for this key may have finished between our miss and
	// joining the group.
	if a, err := c.lookup(ctx, key); err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return a, err
	}

	release, err := c.locker.Acquire(ctx, key.String())
	if err != nil {
		// The unique index still keeps one row per key.
		c.logger.Warn("artifact lock unavailable, generating without it", "key", key.String(), "error", err)
		release = func() {}
	}
	defer release()

	// Another replica may have generated while we waited for the lock.
	if a, err := c.store.Get(ctx, key); err == nil || !errors.Is(err, apperr.ErrNotFound) {
		if a != nil {
			c.remember(a)
		}
		return a, err
	}

	token, err := c.tokens.Get(ctx, key.OwnerID)
	if err != nil {
		return nil, err
	}

	boardName := ""
	if m, err := c.mappings.Get(ctx, key.ProjectID); err == nil {
		boardName = m.BoardName
	}

	data, err := c.boards.GetBoardData(ctx, token, key.ProjectID)
	if err != nil {
		return nil, err
	}
	if boardName == "" {
		boardName = nameFromBoardData(data)
	}

	start := time.Now()
	res, err := c.gen.Generate(ctx, generator.Request{
		OwnerID:      key.OwnerID,
		ProjectID:    key.ProjectID,
		TemplateName: key.TemplateName,
		BoardName:    boardName,
		BoardData:    data,
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Generation(op, err)
		}
		return nil, err
	}
	if res == nil {
		return nil, apperr.Generation(op, fmt.Errorf("generator returned no result"))
	}

	stored, err := c.store.Insert(ctx, &Artifact{
		OwnerID:      key.OwnerID,
		ProjectID:    key.ProjectID,
		TemplateName: key.TemplateName,
		DocumentText: res.Document,
		Diagrams:     datatypes.NewJSONType(res.Diagrams),
		BoardName:    boardName,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("artifact generated",
		"ownerID", key.OwnerID,
		"projectID", key.ProjectID,
		"template", key.TemplateName,
		"diagrams", len(res.Diagrams),
		"duration", time.Since(start).String())

	c.remember(stored)
	if c.onGenerated != nil {
		c.onGenerated(stored)
	}
	return stored, nil
}

func nameFromBoardData(data json.RawMessage) string {
	var b struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(data, &b) != nil {
		return ""
	}
	return b.Name
}

// Has reports whether ownerID has any artifact for projectID.
func (c *Cache) Has(ctx context.Context, ownerID, projectID string) (bool, error) {
	arts, err := c.store.ForBoard(ctx, ownerID, projectID)
	if err != nil {
		return false, err
	}
	return len(arts) > 0, nil
}

// PreviousHeadings returns the markdown "##" headings found in ownerID's
// cached documents for projectID, deduplicated in first-seen order. It never
// generates.
func (c *Cache) PreviousHeadings(ctx context.Context, ownerID, projectID string) ([]string, error) {
	arts, err := c.store.ForBoard(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(arts))
	for i := range arts {
		texts[i] = arts[i].DocumentText
	}
	return ExtractHeadings(texts...), nil
}

// ExtractHeadings scans documents for "##" headings.
func ExtractHeadings(documents ...string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, doc := range documents {
		for _, m := range headingPattern.FindAllStringSubmatch(doc, -1) {
			h := strings.TrimSpace(m[1])
			if h == "" {
				continue
			}
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// ListForOwner returns every artifact of ownerID, newest first.
func (c *Cache) ListForOwner(ctx context.Context, ownerID string) ([]*View, error) {
	arts, err := c.store.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]*View, len(arts))
	for i := range arts {
		out[i] = Present(&arts[i])
	}
	return out, nil
}

// Execute generates the artifact a queued job names, making Cache a
// jobs.Executor. An artifact that already exists completes the job as is.
func (c *Cache) Execute(ctx context.Context, job *jobs.GenerationJob) error {
	_, err := c.GetOrGenerate(ctx, Key{
		OwnerID:      job.OwnerID,
		ProjectID:    job.BoardID,
		TemplateName: job.TemplateName,
	})
	return err
}

// Store exposes the underlying artifact store.
func (c *Cache) Store() *Store { return c.store }
