package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorclass-api/internal/models"
	"github.com/noah-isme/tutorclass-api/pkg/database"
)

// ErrSlotTaken is returned when the database rejects an insert or update on the
// slot unique indexes.
var ErrSlotTaken = errors.New("slot already taken")

const classColumns = "id, teacher_id, student_name, class_type, schedule_date, class_time, status, notes, created_at, updated_at"

// SlotScope exposes the reads and writes allowed while a slot lock is held.
type SlotScope interface {
	Occupants(ctx context.Context, key models.SlotKey) ([]models.ClassInstance, error)
	CountConsumed(ctx context.Context, studentName string, classType models.ClassType) (int, error)
	Insert(ctx context.Context, class *models.ClassInstance) error
	Update(ctx context.Context, class *models.ClassInstance) error
}

// ClassRepository provides persistence for class instances.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes with optional filtering and pagination.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassInstance, int, error) {
	base := "FROM class_instances WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(student_name) = LOWER($%d)", len(args)+1))
		args = append(args, filter.StudentName)
	}
	if filter.ClassType != "" {
		conditions = append(conditions, fmt.Sprintf("class_type = $%d", len(args)+1))
		args = append(args, filter.ClassType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("schedule_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("schedule_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY schedule_date %s, class_time %s, student_name ASC LIMIT %d OFFSET %d", classColumns, base, order, order, size, offset)
	var classes []models.ClassInstance
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}

	return classes, total, nil
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM class_instances WHERE id = $1", classColumns)
	var class models.ClassInstance
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Occupants returns every class in a slot, oldest first, without locking it.
func (r *ClassRepository) Occupants(ctx context.Context, key models.SlotKey) ([]models.ClassInstance, error) {
	return occupants(ctx, r.db, key)
}

// CountConsumed counts a student's classes of a type in a consuming status.
func (r *ClassRepository) CountConsumed(ctx context.Context, studentName string, classType models.ClassType) (int, error) {
	return countConsumed(ctx, r.db, studentName, classType)
}

// CountConsumedByType returns consuming-status counts for every class type the student has.
func (r *ClassRepository) CountConsumedByType(ctx context.Context, studentName string) (map[models.ClassType]int, error) {
	statuses := models.ConsumingStatuses()
	args := []interface{}{studentName}
	placeholders := make([]string, len(statuses))
	for i, s := range statuses {
		args = append(args, s)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("SELECT class_type, COUNT(*) AS used FROM class_instances WHERE LOWER(student_name) = LOWER($1) AND status IN (%s) GROUP BY class_type", strings.Join(placeholders, ", "))

	var rows []struct {
		ClassType models.ClassType `db:"class_type"`
		Used      int              `db:"used"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count consumed classes by type: %w", err)
	}
	out := make(map[models.ClassType]int, len(rows))
	for _, row := range rows {
		out[row.ClassType] = row.Used
	}
	return out, nil
}

// UpdateStatus sets the status of a class and returns the stored row.
func (r *ClassRepository) UpdateStatus(ctx context.Context, id string, status models.ClassStatus) (*models.ClassInstance, error) {
	query := fmt.Sprintf("UPDATE class_instances SET status = $1, updated_at = $2 WHERE id = $3 RETURNING %s", classColumns)
	var class models.ClassInstance
	if err := r.db.GetContext(ctx, &class, query, status, time.Now().UTC(), id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Delete removes a class by id.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM class_instances WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// WithSlotLock runs fn inside a transaction holding a Postgres advisory lock
// scoped to key. Concurrent callers targeting the same slot are serialised
// until the transaction ends.
func (r *ClassRepository) WithSlotLock(ctx context.Context, key models.SlotKey, fn func(SlotScope) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("lock slot %s: %w", key, err)
	}

	if err = fn(&txSlotScope{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit slot transaction: %w", err)
	}
	return nil
}

type txSlotScope struct {
	tx *sqlx.Tx
}

func (s *txSlotScope) Occupants(ctx context.Context, key models.SlotKey) ([]models.ClassInstance, error) {
	return occupants(ctx, s.tx, key)
}

func (s *txSlotScope) CountConsumed(ctx context.Context, studentName string, classType models.ClassType) (int, error) {
	return countConsumed(ctx, s.tx, studentName, classType)
}

func (s *txSlotScope) Insert(ctx context.Context, class *models.ClassInstance) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO class_instances (id, teacher_id, student_name, class_type, schedule_date, class_time, status, notes, created_at, updated_at) VALUES (:id, :teacher_id, :student_name, :class_type, :schedule_date, :class_time, :status, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.tx, query, class); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert class: %w", err)
	}
	return nil
}

func (s *txSlotScope) Update(ctx context.Context, class *models.ClassInstance) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_instances SET teacher_id = :teacher_id, student_name = :student_name, class_type = :class_type, schedule_date = :schedule_date, class_time = :class_time, status = :status, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, s.tx, query, class); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

func occupants(ctx context.Context, q sqlx.QueryerContext, key models.SlotKey) ([]models.ClassInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM class_instances WHERE teacher_id = $1 AND schedule_date = $2 AND class_time = $3 ORDER BY created_at ASC", classColumns)
	var classes []models.ClassInstance
	if err := sqlx.SelectContext(ctx, q, &classes, query, key.TeacherID, key.Date, key.Time); err != nil {
		return nil, fmt.Errorf("find slot occupants: %w", err)
	}
	return classes, nil
}

func countConsumed(ctx context.Context, q sqlx.QueryerContext, studentName string, classType models.ClassType) (int, error) {
	statuses := models.ConsumingStatuses()
	args := []interface{}{studentName, classType}
	placeholders := make([]string, len(statuses))
	for i, s := range statuses {
		args = append(args, s)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM class_instances WHERE LOWER(student_name) = LOWER($1) AND class_type = $2 AND status IN (%s)", strings.Join(placeholders, ", "))

	var used int
	if err := sqlx.GetContext(ctx, q, &used, query, args...); err != nil {
		return 0, fmt.Errorf("count consumed classes: %w", err)
	}
	return used, nil
}
