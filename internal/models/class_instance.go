package models

import (
	"fmt"
	"time"
)

// ClassInstance is one scheduled occurrence of a class for one student. Group
// members are separate rows sharing the same slot key.
type ClassInstance struct {
	ID           string      `db:"id" json:"id"`
	TeacherID    string      `db:"teacher_id" json:"teacher_id"`
	StudentName  string      `db:"student_name" json:"student_name"`
	ClassType    ClassType   `db:"class_type" json:"class_type"`
	ScheduleDate ClassDate   `db:"schedule_date" json:"schedule"`
	Time         ClassTime   `db:"class_time" json:"time"`
	Status       ClassStatus `db:"status" json:"status"`
	Notes        *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Slot returns the (teacher, date, time) key the class occupies.
func (c ClassInstance) Slot() SlotKey {
	return SlotKey{TeacherID: c.TeacherID, Date: c.ScheduleDate, Time: c.Time}
}

// SlotKey identifies a teacher's slot on a given date and start time.
type SlotKey struct {
	TeacherID string    `json:"teacher_id"`
	Date      ClassDate `json:"schedule"`
	Time      ClassTime `json:"time"`
}

// String renders the key in a stable form used for locking and cache keys.
func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.TeacherID, k.Date.String(), k.Time)
}

// Equal reports whether both keys address the same slot.
func (k SlotKey) Equal(other SlotKey) bool {
	return k.TeacherID == other.TeacherID && k.Date.Equal(other.Date) && k.Time == other.Time
}

// ClassFilter describes query params for listing classes.
type ClassFilter struct {
	TeacherID   string
	StudentName string
	ClassType   ClassType
	Status      ClassStatus
	DateFrom    *ClassDate
	DateTo      *ClassDate
	Page        int
	PageSize    int
	SortOrder   string
}

// ConflictingClass is the caller-facing description of the occupant blocking a slot.
type ConflictingClass struct {
	ID          string    `json:"id"`
	StudentName string    `json:"student_name"`
	ClassType   ClassType `json:"class_type"`
	Time        ClassTime `json:"time"`
	Schedule    ClassDate `json:"schedule"`
}

// ConflictFrom describes an existing occupant for conflict messaging.
func ConflictFrom(c ClassInstance) ConflictingClass {
	return ConflictingClass{
		ID:          c.ID,
		StudentName: c.StudentName,
		ClassType:   c.ClassType,
		Time:        c.Time,
		Schedule:    c.ScheduleDate,
	}
}

// SlotConflictError is returned when a class cannot share the requested slot.
type SlotConflictError struct {
	Message          string           `json:"message"`
	ConflictingClass ConflictingClass `json:"conflicting_class"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// QuotaExceededError reports a student with no remaining purchased classes of a type.
type QuotaExceededError struct {
	StudentName string    `json:"student_name"`
	ClassType   ClassType `json:"class_type"`
	Purchased   int       `json:"purchased"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s has no remaining %s classes (purchased %d, used %d)", e.StudentName, e.ClassType, e.Purchased, e.Used)
}

// GroupMemberFailure records why one student of a group submission was not scheduled.
type GroupMemberFailure struct {
	StudentName      string            `json:"student_name"`
	Code             string            `json:"code"`
	Message          string            `json:"message"`
	ConflictingClass *ConflictingClass `json:"conflicting_class,omitempty"`
}

// GroupBatchResult summarises a multi-student group submission. Successful
// members stay persisted even when siblings fail.
type GroupBatchResult struct {
	Created []ClassInstance      `json:"created"`
	Failed  []GroupMemberFailure `json:"failed,omitempty"`
}

// Partial reports whether some but not all members were scheduled.
func (r *GroupBatchResult) Partial() bool {
	return r != nil && len(r.Created) > 0 && len(r.Failed) > 0
}
