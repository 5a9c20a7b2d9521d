// pkg/project/project_test.go
package project

import (
	"testing"

	"assetvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectID_NotInitialized(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.ProjectID()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInit_RoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())

	id, err := m.Init("")
	require.NoError(t, err)
	assert.False(t, id.IsZero())

	got, err := m.ProjectID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestInit_DoesNotOverwrite(t *testing.T) {
	m := NewManager(t.TempDir())

	first, err := m.Init(types.ProjectID("team-alpha"))
	require.NoError(t, err)
	assert.Equal(t, types.ProjectID("team-alpha"), first)

	// 重复 init 返回既有 id，不接受新 id
	second, err := m.Init(types.ProjectID("team-beta"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
