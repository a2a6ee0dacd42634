package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Project Creation Tests
// =============================================================================

func TestNewProject(t *testing.T) {
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	p, err := NewProject("Demo", "user-1", now)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Demo", p.Name)
	assert.Equal(t, DeriveSlug("Demo", now), p.Slug)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, StatusCreated, p.Status)
	assert.Equal(t, now, p.CreatedAt)
}

func TestNewProject_EmptyName(t *testing.T) {
	_, err := NewProject("", "user-1", time.Now())
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestNewProject_DistinctSlugs(t *testing.T) {
	a := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	b := a.Add(3 * time.Second)

	p1, err := NewProject("Shop", "user-1", a)
	require.NoError(t, err)
	p2, err := NewProject("Blog", "user-1", b)
	require.NoError(t, err)

	assert.NotEqual(t, p1.Slug, p2.Slug)
	assert.NotEqual(t, p1.ID, p2.ID)
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestValidateTransition_TableDriven(t *testing.T) {
	tests := []struct {
		name    string
		from    ProjectStatus
		to      ProjectStatus
		allowed bool
	}{
		{"created to active", StatusCreated, StatusActive, true},
		{"created to deleted", StatusCreated, StatusDeleted, true},
		{"active to paused", StatusActive, StatusPaused, true},
		{"active to deleted", StatusActive, StatusDeleted, true},
		{"paused to active", StatusPaused, StatusActive, true},
		{"paused to deleted", StatusPaused, StatusDeleted, true},
		{"created to paused", StatusCreated, StatusPaused, false},
		{"deleted is terminal", StatusDeleted, StatusActive, false},
		{"unknown status", ProjectStatus("bogus"), StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestProject_Transition(t *testing.T) {
	p, err := NewProject("Demo", "user-1", time.Now())
	require.NoError(t, err)

	require.NoError(t, p.Transition(StatusActive))
	assert.Equal(t, StatusActive, p.Status)

	require.NoError(t, p.Transition(StatusPaused))
	require.NoError(t, p.Transition(StatusActive))
	require.NoError(t, p.Transition(StatusDeleted))

	err = p.Transition(StatusActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// =============================================================================
// Result Tests
// =============================================================================

func TestResult_OK(t *testing.T) {
	r := OK()
	assert.True(t, r.Success)
	assert.Empty(t, r.Error)
}

func TestResult_Fail(t *testing.T) {
	r := Fail("deploy failed: %s", "no such image")
	assert.False(t, r.Success)
	assert.Equal(t, "deploy failed: no such image", r.Error)
}
