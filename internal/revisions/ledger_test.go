package revisions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/cache"
	"github.com/folio/folio-backend/internal/db"
	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
	"github.com/folio/folio-backend/pkg/kv/memory"
)

type fixture struct {
	db     interfaces.Database
	cache  *cache.Cache
	ledger *Ledger
}

func newFixture(t *testing.T, database interfaces.Database) *fixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.ConnectAndMigrate(ctx, database))

	logger := zaptest.NewLogger(t).Sugar()
	c := cache.New(memory.New(0), time.Minute, logger, nil)
	t.Cleanup(func() { _ = c.Close() })

	return &fixture{
		db:     database,
		cache:  c,
		ledger: NewLedger(database, c, Options{MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, logger, nil),
	}
}

func (f *fixture) createPost(t *testing.T, title, content string) *entities.Post {
	t.Helper()
	now := time.Now().UTC()
	p := &entities.Post{
		ID:         "post-" + title,
		AuthorID:   "author",
		Title:      title,
		Slug:       "slug-" + title,
		Content:    &content,
		Status:     entities.StatusDraft,
		Visibility: entities.VisibilityPublic,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.db.Posts().Create(context.Background(), p))
	return p
}

func (f *fixture) edit(t *testing.T, postID, content string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.ledger.Snapshot(ctx, postID, "editor", "")
	require.NoError(t, err)

	p, err := f.db.Posts().GetByID(ctx, postID)
	require.NoError(t, err)
	p.Content = &content
	require.NoError(t, f.db.Posts().Update(ctx, p))
}

func TestSnapshotNumbersAreSequential(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	p := f.createPost(t, "a", "v0")
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		rev, err := f.ledger.Snapshot(ctx, p.ID, "editor", "")
		require.NoError(t, err)
		assert.Equal(t, want, rev.RevisionNumber)
		assert.Equal(t, "editor", rev.CreatedBy)
	}
}

func TestSnapshotMissingPost(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	_, err := f.ledger.Snapshot(context.Background(), "missing", "editor", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentSnapshotsAreGapless(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	p := f.createPost(t, "a", "v0")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Snapshot(ctx, p.ID, "editor", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	revs, err := f.db.Revisions().ListByPost(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, revs, 20)
	for i, rev := range revs {
		assert.Equal(t, 20-i, rev.RevisionNumber)
	}
}

// conflictingDB makes the first n revision inserts lose a race.
type conflictingDB struct {
	interfaces.Database
	mu        sync.Mutex
	conflicts int
}

type conflictingTx struct {
	interfaces.Transaction
	db *conflictingDB
}

type conflictingRevisions struct {
	interfaces.RevisionRepository
	db *conflictingDB
}

func (d *conflictingDB) Transaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	return d.Database.Transaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		return fn(ctx, &conflictingTx{Transaction: tx, db: d})
	})
}

func (t *conflictingTx) Revisions() interfaces.RevisionRepository {
	return &conflictingRevisions{RevisionRepository: t.Transaction.Revisions(), db: t.db}
}

func (r *conflictingRevisions) Create(ctx context.Context, rev *entities.PostRevision) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.conflicts > 0 {
		r.db.conflicts--
		return interfaces.ErrUniqueConstraint
	}
	return r.RevisionRepository.Create(ctx, rev)
}

func TestSnapshotRetriesOnNumberConflict(t *testing.T) {
	database := &conflictingDB{Database: db.NewInMemoryDatabase(), conflicts: 2}
	f := newFixture(t, database)
	p := f.createPost(t, "a", "v0")

	rev, err := f.ledger.Snapshot(context.Background(), p.ID, "editor", "")
	require.NoError(t, err)
	assert.Equal(t, 1, rev.RevisionNumber)
}

func TestSnapshotGivesUpAfterMaxAttempts(t *testing.T) {
	database := &conflictingDB{Database: db.NewInMemoryDatabase(), conflicts: 100}
	f := newFixture(t, database)
	p := f.createPost(t, "a", "v0")

	_, err := f.ledger.Snapshot(context.Background(), p.ID, "editor", "")
	assert.ErrorIs(t, err, interfaces.ErrUniqueConstraint)
	assert.Equal(t, 100-5, database.conflicts)
}

func TestThreeEditsDiffAndRestore(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	ctx := context.Background()
	p := f.createPost(t, "a", "line one\nline two")

	f.edit(t, p.ID, "line one\nline 2")
	f.edit(t, p.ID, "line one\nline 2\nline three")
	f.edit(t, p.ID, "final")

	revs, err := f.ledger.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	rev1, rev3 := revs[2], revs[0]
	assert.Equal(t, 1, rev1.RevisionNumber)
	assert.Equal(t, 3, rev3.RevisionNumber)

	diff, err := f.ledger.Diff(ctx, rev1.ID, rev3.ID)
	require.NoError(t, err)
	assert.Equal(t, []LineChange{
		{ChangeUnchanged, "line one"},
		{ChangeRemoved, "line two"}, {ChangeAdded, "line 2"},
		{ChangeAdded, "line three"},
	}, diff.ContentDiff)
	assert.Equal(t, []LineChange{{ChangeUnchanged, "a"}}, diff.TitleDiff)

	restored, err := f.ledger.Restore(ctx, p.ID, rev1.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", restored.ContentOrEmpty())
	assert.Equal(t, 4, restored.WordCount)

	revs, err = f.ledger.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, revs, 4)
	assert.Equal(t, 4, revs[0].RevisionNumber)
	assert.Equal(t, "final", revs[0].ContentOrEmpty())
	assert.Equal(t, "admin", revs[0].CreatedBy)
	assert.Equal(t, "Before restoring revision 1", revs[0].Note)

	stored, err := f.db.Posts().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDraft, stored.Status)
	assert.Equal(t, p.Slug, stored.Slug)
}

func TestRestoreRejectsForeignRevision(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	ctx := context.Background()
	a := f.createPost(t, "a", "a0")
	b := f.createPost(t, "b", "b0")

	rev, err := f.ledger.Snapshot(ctx, b.ID, "editor", "")
	require.NoError(t, err)

	_, err = f.ledger.Restore(ctx, a.ID, rev.ID, "editor")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	revs, err := f.db.Revisions().ListByPost(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, revs)
}

func TestDiffAcrossPostsIsValidationError(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	ctx := context.Background()
	a := f.createPost(t, "a", "a0")
	b := f.createPost(t, "b", "b0")

	ra, err := f.ledger.Snapshot(ctx, a.ID, "editor", "")
	require.NoError(t, err)
	rb, err := f.ledger.Snapshot(ctx, b.ID, "editor", "")
	require.NoError(t, err)

	_, err = f.ledger.Diff(ctx, ra.ID, rb.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListIsInvalidatedBySnapshot(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	ctx := context.Background()
	p := f.createPost(t, "a", "v0")

	revs, err := f.ledger.List(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, revs)

	_, err = f.ledger.Snapshot(ctx, p.ID, "editor", "")
	require.NoError(t, err)

	revs, err = f.ledger.List(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestRevisionsOfDeletedPostAreUnreachable(t *testing.T) {
	f := newFixture(t, db.NewInMemoryDatabase())
	ctx := context.Background()
	p := f.createPost(t, "a", "v0")

	rev, err := f.ledger.Snapshot(ctx, p.ID, "editor", "")
	require.NoError(t, err)
	require.NoError(t, f.db.Posts().SoftDelete(ctx, p.ID, time.Now()))

	_, err = f.ledger.Get(ctx, rev.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.ledger.List(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
