package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/store"
)

func TestWhereClauseIsStableAndParameterized(t *testing.T) {
	table := NewTable[models.Record](nil)

	where, args, err := table.where(store.Conditions{"in_wishlist": true, "artist": "Coltrane", "date_added": nil}, 3)

	require.NoError(t, err)
	assert.Equal(t, ` WHERE "artist" = $3 AND "date_added" IS NULL AND "in_wishlist" = $4`, where)
	assert.Equal(t, []any{"Coltrane", true}, args)
}

func TestWhereClauseEmpty(t *testing.T) {
	table := NewTable[models.Record](nil)

	where, args, err := table.where(nil, 1)

	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestUpsertQueryUsesIdentityAsConflictKey(t *testing.T) {
	table := NewTable[models.SyncStatus](nil)

	query := table.upsertQuery(models.SyncStatus{Service: "bgg"})

	assert.Contains(t, query, `INSERT INTO "sync_status" ("service", "last_sync_at", "in_progress", "error_message") VALUES ($1, $2, $3, $4)`)
	assert.Contains(t, query, `ON CONFLICT ("service") DO UPDATE`)
	assert.Contains(t, query, `"in_progress" = EXCLUDED."in_progress"`)
	assert.NotContains(t, query, `"service" = EXCLUDED."service"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(query), "RETURNING id, created_at, updated_at"))
}
