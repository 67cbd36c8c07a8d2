package database

import (
	"testing"

	modelspkg "threads/internal/models"

	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesUserAndThread(t *testing.T) {
	var hasUser, hasThread bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *modelspkg.User:
			hasUser = true
		case *modelspkg.Thread:
			hasThread = true
		}
	}
	require.True(t, hasUser, "PersistentModels should include User")
	require.True(t, hasThread, "PersistentModels should include Thread")
}
