package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picthaisky/english-speaking-coach/migrations"
)

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"010_add_index.sql":      {Data: []byte("SELECT 1")},
		"002_feedback.sql":       {Data: []byte("SELECT 1")},
		"001_initial_schema.sql": {Data: []byte("SELECT 1")},
		"README.md":              {Data: []byte("notes")},
		"draft_idea.sql":         {Data: []byte("SELECT 1")},
	}

	got, err := listMigrations(fsys)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].version)
	assert.Equal(t, 2, got[1].version)
	assert.Equal(t, 10, got[2].version)
	assert.Equal(t, "010_add_index.sql", got[2].name)
}

func TestListMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"003_a.sql": {Data: []byte("SELECT 1")},
		"3_b.sql":   {Data: []byte("SELECT 1")},
	}

	_, err := listMigrations(fsys)
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := listMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].version)
}
