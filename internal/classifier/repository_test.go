package classifier

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "classifier.sqlite")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.PipelineModels()...))
	return db
}

func TestRepositoryImportAndLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	repo := NewRepository(testDB(t))
	require.NoError(repo.Import(ctx, testConfig()))

	cfg, err := repo.Load(ctx)
	require.NoError(err)
	assert.Len(cfg.Categories, 4)
	assert.ElementsMatch([]string{"sh1t", "$hit"}, cfg.Homophones["shit"])
	assert.Equal([]string{"nsfw"}, cfg.BoardRelaxations["adult"])

	for _, c := range cfg.Categories {
		if c.Name == "disabled" {
			assert.False(c.Active)
		}
		if c.Name == "spam" {
			assert.Equal([]string{"buy followers"}, c.Terms)
			assert.Equal([]string{`(?i)t\.me/\w+`}, c.Patterns)
		}
	}

	// A second import replaces everything.
	require.NoError(repo.Import(ctx, &Config{Categories: []Category{
		{Name: "only", Weight: 0.2, Active: true, Terms: []string{"x"}},
	}}))
	cfg, err = repo.Load(ctx)
	require.NoError(err)
	assert.Len(cfg.Categories, 1)
	assert.Empty(cfg.Homophones)
}

func TestRepositoryRejectsInvalidConfig(t *testing.T) {
	repo := NewRepository(testDB(t))
	err := repo.UpsertCategory(context.Background(), Category{Name: "bad", Weight: 0.5, Patterns: []string{"[a-"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRepositoryWritesInvalidateProvider(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	repo := NewRepository(testDB(t))
	provider := NewProvider(repo, MustStaticSource(), time.Hour)
	repo.OnWrite(provider.Invalidate)

	// Empty store: static snapshot.
	assert.Equal(SourceStatic, provider.Ruleset(ctx).Source())

	require.NoError(repo.UpsertCategory(ctx, Category{Name: "custom", Weight: 0.4, Active: true, Terms: []string{"zebra"}}))
	rs := provider.Ruleset(ctx)
	assert.Equal(SourceStore, rs.Source())
	assert.True(rs.Classify("a zebra", "").Flagged)

	require.NoError(repo.UpsertCategory(ctx, Category{Name: "custom", Weight: 0.4, Active: true, Terms: []string{"giraffe"}}))
	rs = provider.Ruleset(ctx)
	assert.False(rs.Classify("a zebra", "").Flagged)
	assert.True(rs.Classify("a giraffe", "").Flagged)

	require.NoError(repo.SetHomophones(ctx, map[string][]string{"giraffe": {"g1raffe"}}))
	assert.True(provider.Ruleset(ctx).Classify("g1raffe", "").Flagged)

	require.NoError(repo.SetBoardRelaxations(ctx, "zoo", []string{"custom"}))
	assert.False(provider.Ruleset(ctx).Classify("giraffe", "zoo").Flagged)

	require.NoError(repo.DeleteCategory(ctx, "custom"))
	assert.Equal(SourceStatic, provider.Ruleset(ctx).Source())

	assert.ErrorIs(repo.DeleteCategory(ctx, "custom"), ErrCategoryNotFound)
}

func TestRepositoryInactiveCategoryPersists(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB(t))
	require.NoError(t, repo.UpsertCategory(ctx, Category{Name: "off", Weight: 0.4, Active: false, Terms: []string{"x"}}))

	cfg, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Categories, 1)
	assert.False(t, cfg.Categories[0].Active)
	assert.False(t, cfg.HasActiveCategories())
	assert.False(t, cfg.IsEmpty())
}

func TestProviderServesAllInactiveStore(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB(t))
	provider := NewProvider(repo, MustStaticSource(), time.Minute)
	repo.OnWrite(provider.Invalidate)

	// Switching every category off disables classification instead of
	// reviving the static rules.
	require.NoError(t, repo.UpsertCategory(ctx, Category{Name: "scam", Weight: 0.9, Active: false, Terms: []string{"seed phrase"}}))

	rs := provider.Ruleset(ctx)
	assert.Equal(t, SourceStore, rs.Source())
	assert.False(t, rs.Classify("send 5 btc to recover your seed phrase", "").Flagged)
}
