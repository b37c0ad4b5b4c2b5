package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"surveytrack-data/internal/domain"
)

// PostgresAssignmentsRepo 分配记录Repository实现（对应 assignments 表）
type PostgresAssignmentsRepo struct {
	db *sql.DB
}

// NewPostgresAssignmentsRepo 创建分配记录Repository
func NewPostgresAssignmentsRepo(db *sql.DB) *PostgresAssignmentsRepo {
	return &PostgresAssignmentsRepo{db: db}
}

// 确保实现了接口
var _ AssignmentsRepository = (*PostgresAssignmentsRepo)(nil)

const assignmentColumns = `
	assignment_id::text,
	device_id,
	survey_id,
	from_date,
	to_date,
	status,
	assigned_by,
	notes,
	created_at,
	updated_at
`

func scanAssignment(row interface{ Scan(...any) error }) (*domain.Assignment, error) {
	var a domain.Assignment
	var notes sql.NullString
	err := row.Scan(
		&a.AssignmentID,
		&a.DeviceID,
		&a.SurveyID,
		&a.FromDate,
		&a.ToDate,
		&a.Status,
		&a.AssignedBy,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		a.Notes = notes.String
	}
	return &a, nil
}

// GetAssignment 获取分配记录
func (r *PostgresAssignmentsRepo) GetAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error) {
	if assignmentID == "" {
		return nil, domain.ErrNotFound
	}

	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE assignment_id = $1`
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, assignmentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListAssignments 批量查询分配记录（支持过滤和分页，from_date 降序）
func (r *PostgresAssignmentsRepo) ListAssignments(ctx context.Context, filters AssignmentFilters, page, size int) ([]*domain.Assignment, int, error) {
	where := []string{"1=1"}
	args := []any{}
	argN := 1

	if filters.DeviceID != "" {
		where = append(where, fmt.Sprintf("device_id = $%d", argN))
		args = append(args, filters.DeviceID)
		argN++
	}
	if filters.SurveyID != "" {
		where = append(where, fmt.Sprintf("survey_id = $%d", argN))
		args = append(args, filters.SurveyID)
		argN++
	}
	if len(filters.Status) > 0 {
		placeholders := make([]string, len(filters.Status))
		for i, s := range filters.Status {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, s)
			argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM assignments WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assignments: %w", err)
	}

	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE ` + whereClause +
		` ORDER BY from_date DESC, assignment_id`
	if size > 0 {
		if page <= 0 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
		args = append(args, size, (page-1)*size)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	items := []*domain.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan assignment: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return items, total, nil
}

// CreateAssignment 创建分配记录
func (r *PostgresAssignmentsRepo) CreateAssignment(ctx context.Context, a *domain.Assignment) (string, error) {
	assignmentID := a.AssignmentID
	if assignmentID == "" {
		assignmentID = uuid.NewString()
	}

	var notes any
	if a.Notes != "" {
		notes = a.Notes
	}

	query := `
		INSERT INTO assignments (
			assignment_id, device_id, survey_id, from_date, to_date,
			status, assigned_by, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	if _, err := r.db.ExecContext(ctx, query,
		assignmentID, a.DeviceID, a.SurveyID, a.FromDate, a.ToDate,
		a.Status, a.AssignedBy, notes,
	); err != nil {
		return "", fmt.Errorf("failed to create assignment: %w", err)
	}
	return assignmentID, nil
}

// UpdateAssignment 更新分配记录（仅允许可变字段）
func (r *PostgresAssignmentsRepo) UpdateAssignment(ctx context.Context, assignmentID string, upd AssignmentUpdate) (*domain.Assignment, error) {
	if upd.DeviceID != nil {
		return nil, &domain.ValidationError{Field: "device_id", Reason: "immutable after creation"}
	}
	if upd.SurveyID != nil {
		return nil, &domain.ValidationError{Field: "survey_id", Reason: "immutable after creation"}
	}

	set := []string{"updated_at = NOW()"}
	args := []any{}
	argN := 1

	if upd.ToDate != nil {
		set = append(set, fmt.Sprintf("to_date = $%d", argN))
		args = append(args, *upd.ToDate)
		argN++
	}
	if upd.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argN))
		args = append(args, *upd.Status)
		argN++
	}
	if upd.Notes != nil {
		set = append(set, fmt.Sprintf("notes = $%d", argN))
		args = append(args, *upd.Notes)
		argN++
	}

	query := fmt.Sprintf(
		`UPDATE assignments SET %s WHERE assignment_id = $%d RETURNING `+assignmentColumns,
		strings.Join(set, ", "), argN,
	)
	args = append(args, assignmentID)

	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}
	return a, nil
}

// DeleteAssignment 物理删除分配记录（仅用于纠错）
func (r *PostgresAssignmentsRepo) DeleteAssignment(ctx context.Context, assignmentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE assignment_id = $1`, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActiveByDevice 查询设备当前 ACTIVE 分配（冲突检测专用）
func (r *PostgresAssignmentsRepo) ListActiveByDevice(ctx context.Context, deviceID string) ([]*domain.Assignment, error) {
	if deviceID == "" {
		return []*domain.Assignment{}, nil
	}

	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE device_id = $1 AND status = $2
		ORDER BY from_date DESC, assignment_id`
	rows, err := r.db.QueryContext(ctx, query, deviceID, domain.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active assignments: %w", err)
	}
	defer rows.Close()

	items := []*domain.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return items, nil
}

// ActiveDeviceIDs 查询当前持有 ACTIVE 分配的设备ID列表
func (r *PostgresAssignmentsRepo) ActiveDeviceIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT device_id FROM assignments WHERE status = $1 ORDER BY device_id`,
		domain.StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active device ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan device id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device ids: %w", err)
	}
	return ids, nil
}
