package models

import "time"

// Student is a person who may be scheduled into classes. Purchased counts are
// maintained by billing and only read here.
type Student struct {
	ID                    string    `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	Email                 string    `db:"email" json:"email"`
	PurchasedClassRegular int       `db:"purchased_class_regular" json:"purchased_class_regular"`
	PurchasedClassPremium int       `db:"purchased_class_premium" json:"purchased_class_premium"`
	PurchasedClassGroup   int       `db:"purchased_class_group" json:"purchased_class_group"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Purchased returns the purchased count for a class type.
func (s Student) Purchased(t ClassType) int {
	switch t {
	case ClassTypeRegular:
		return s.PurchasedClassRegular
	case ClassTypePremium:
		return s.PurchasedClassPremium
	case ClassTypeGroup:
		return s.PurchasedClassGroup
	default:
		return 0
	}
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassBalance is the derived ledger entry for one class type.
type ClassBalance struct {
	ClassType ClassType `json:"class_type"`
	Purchased int       `json:"purchased"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
}

// StudentBalance aggregates a student's balances across class types.
type StudentBalance struct {
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name"`
	Balances    []ClassBalance `json:"balances"`
	ComputedAt  time.Time      `json:"computed_at"`
}
