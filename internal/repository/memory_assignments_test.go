package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"surveytrack-data/internal/domain"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func seedAssignment(t *testing.T, repo *MemoryAssignmentsRepo, deviceID, surveyID, from, to, status string) *domain.Assignment {
	t.Helper()
	id, err := repo.CreateAssignment(context.Background(), &domain.Assignment{
		DeviceID:   deviceID,
		SurveyID:   surveyID,
		FromDate:   mustDate(t, from),
		ToDate:     mustDate(t, to),
		Status:     status,
		AssignedBy: "tester",
	})
	require.NoError(t, err)
	a, err := repo.GetAssignment(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestMemoryRepo_CreateAndGet(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()

	a := seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-31", domain.StatusActive)
	require.NotEmpty(t, a.AssignmentID)
	require.False(t, a.CreatedAt.IsZero())
	require.True(t, a.CreatedAt.Equal(a.UpdatedAt))

	_, err := repo.GetAssignment(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRepo_ListOrderedByFromDateDesc(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-10", domain.StatusCompleted)
	seedAssignment(t, repo, "D1", "S2", "2024-03-01", "2024-03-10", domain.StatusActive)
	seedAssignment(t, repo, "D1", "S3", "2024-02-01", "2024-02-10", domain.StatusActive)

	items, total, err := repo.ListAssignments(ctx, AssignmentFilters{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, "S2", items[0].SurveyID)
	require.Equal(t, "S3", items[1].SurveyID)
	require.Equal(t, "S1", items[2].SurveyID)
}

func TestMemoryRepo_ListFilters(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-10", domain.StatusActive)
	seedAssignment(t, repo, "D2", "S1", "2024-02-01", "2024-02-10", domain.StatusCancelled)
	seedAssignment(t, repo, "D2", "S2", "2024-03-01", "2024-03-10", domain.StatusActive)

	items, total, err := repo.ListAssignments(ctx, AssignmentFilters{DeviceID: "D2"}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	items, total, err = repo.ListAssignments(ctx, AssignmentFilters{SurveyID: "S1"}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	items, total, err = repo.ListAssignments(ctx, AssignmentFilters{
		DeviceID: "D2",
		Status:   []string{domain.StatusActive},
	}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "S2", items[0].SurveyID)
}

func TestMemoryRepo_ListPagination(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	for i, from := range []string{"2024-01-01", "2024-02-01", "2024-03-01"} {
		seedAssignment(t, repo, "D1", "S"+string(rune('1'+i)), from, from, domain.StatusActive)
	}

	items, total, err := repo.ListAssignments(ctx, AssignmentFilters{}, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 2)

	items, _, err = repo.ListAssignments(ctx, AssignmentFilters{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// past the end
	items, _, err = repo.ListAssignments(ctx, AssignmentFilters{}, 5, 2)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestMemoryRepo_UpdateMutableFields(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	a := seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-31", domain.StatusActive)

	newTo := mustDate(t, "2024-02-15")
	status := domain.StatusCompleted
	notes := "closed early"
	updated, err := repo.UpdateAssignment(ctx, a.AssignmentID, AssignmentUpdate{
		ToDate: &newTo,
		Status: &status,
		Notes:  &notes,
	})
	require.NoError(t, err)
	require.True(t, updated.ToDate.Equal(newTo))
	require.Equal(t, domain.StatusCompleted, updated.Status)
	require.Equal(t, "closed early", updated.Notes)
	require.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))

	_, err = repo.UpdateAssignment(ctx, "missing", AssignmentUpdate{Status: &status})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRepo_UpdateRejectsIdentityFields(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	a := seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-31", domain.StatusActive)

	other := "D2"
	var ve *domain.ValidationError
	_, err := repo.UpdateAssignment(ctx, a.AssignmentID, AssignmentUpdate{DeviceID: &other})
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "device_id", ve.Field)

	survey := "S9"
	_, err = repo.UpdateAssignment(ctx, a.AssignmentID, AssignmentUpdate{SurveyID: &survey})
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "survey_id", ve.Field)

	// the record is untouched by the rejected updates
	cur, err := repo.GetAssignment(ctx, a.AssignmentID)
	require.NoError(t, err)
	require.Equal(t, "D1", cur.DeviceID)
	require.Equal(t, "S1", cur.SurveyID)
	require.True(t, cur.UpdatedAt.Equal(a.UpdatedAt))
}

func TestMemoryRepo_Delete(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	a := seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-31", domain.StatusActive)

	require.NoError(t, repo.DeleteAssignment(ctx, a.AssignmentID))
	require.ErrorIs(t, repo.DeleteAssignment(ctx, a.AssignmentID), domain.ErrNotFound)

	active, err := repo.ListActiveByDevice(ctx, "D1")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestMemoryRepo_ListActiveByDevice(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-10", domain.StatusActive)
	seedAssignment(t, repo, "D1", "S2", "2024-02-01", "2024-02-10", domain.StatusCancelled)
	seedAssignment(t, repo, "D1", "S3", "2024-03-01", "2024-03-10", domain.StatusActive)
	seedAssignment(t, repo, "D2", "S4", "2024-01-01", "2024-01-10", domain.StatusActive)

	active, err := repo.ListActiveByDevice(ctx, "D1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "S3", active[0].SurveyID)
	require.Equal(t, "S1", active[1].SurveyID)

	active, err = repo.ListActiveByDevice(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestMemoryRepo_ActiveDeviceIDs(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	seedAssignment(t, repo, "D2", "S1", "2024-01-01", "2024-01-10", domain.StatusActive)
	seedAssignment(t, repo, "D1", "S2", "2024-01-01", "2024-01-10", domain.StatusActive)
	seedAssignment(t, repo, "D3", "S3", "2024-01-01", "2024-01-10", domain.StatusCompleted)

	ids, err := repo.ActiveDeviceIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"D1", "D2"}, ids)
}

func TestMemoryRepo_ReturnsCopies(t *testing.T) {
	repo := NewMemoryAssignmentsRepo()
	ctx := context.Background()

	a := seedAssignment(t, repo, "D1", "S1", "2024-01-01", "2024-01-31", domain.StatusActive)

	// mutating a returned record must not leak into the ledger
	a.Status = domain.StatusCancelled
	cur, err := repo.GetAssignment(ctx, a.AssignmentID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, cur.Status)
}
