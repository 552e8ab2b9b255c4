package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSqliteSessionEventRepository(t *testing.T) {
	repo, err := OpenSqliteSessionEventRepository(context.Background(), filepath.Join(t.TempDir(), "events.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	exerciseEventLog(t, repo)
}
