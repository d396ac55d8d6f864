package models

import "strings"

// ClassType distinguishes exclusive one-to-one classes from shared group classes.
type ClassType string

const (
	ClassTypeRegular ClassType = "Regular"
	ClassTypePremium ClassType = "Premium"
	ClassTypeGroup   ClassType = "Group"
)

// ClassTypes lists every supported class type in display order.
var ClassTypes = []ClassType{ClassTypeRegular, ClassTypePremium, ClassTypeGroup}

// ParseClassType resolves a class type case-insensitively.
func ParseClassType(raw string) (ClassType, bool) {
	for _, t := range ClassTypes {
		if strings.EqualFold(strings.TrimSpace(raw), string(t)) {
			return t, true
		}
	}
	return "", false
}

// Exclusive reports whether a class of this type must be alone in its slot.
func (t ClassType) Exclusive() bool {
	return t != ClassTypeGroup
}

// ClassStatus is the lifecycle state of a scheduled class.
type ClassStatus string

const (
	StatusValidForCancellation       ClassStatus = "Valid for cancellation"
	StatusFreeClassNotConsumed       ClassStatus = "FC not consumed"
	StatusCompleted                  ClassStatus = "Completed"
	StatusAbsentWithNoticeCounted    ClassStatus = "Absent w/ntc counted"
	StatusCancelled                  ClassStatus = "Cancelled"
	StatusAbsentWithNoticeNotCounted ClassStatus = "Absent w/ntc-not counted"
	StatusFreeClassConsumed          ClassStatus = "FC consumed"
	StatusAbsentWithoutNotice        ClassStatus = "Absent w/o ntc"
)

type statusTraits struct {
	key       string
	consumes  bool
	terminal  bool
	recompute bool
}

var classStatusTraits = map[ClassStatus]statusTraits{
	StatusValidForCancellation:       {key: "ValidForCancellation"},
	StatusFreeClassNotConsumed:       {key: "FreeClassNotConsumed"},
	StatusCompleted:                  {key: "Completed", consumes: true, terminal: true, recompute: true},
	StatusAbsentWithNoticeCounted:    {key: "AbsentWithNoticeCounted", consumes: true},
	StatusCancelled:                  {key: "Cancelled", terminal: true},
	StatusAbsentWithNoticeNotCounted: {key: "AbsentWithNoticeNotCounted"},
	StatusFreeClassConsumed:          {key: "FreeClassConsumed", consumes: true},
	StatusAbsentWithoutNotice:        {key: "AbsentWithoutNotice", terminal: true, recompute: true},
}

// ClassStatuses lists every status in the order the admin UI offers them.
var ClassStatuses = []ClassStatus{
	StatusValidForCancellation,
	StatusFreeClassNotConsumed,
	StatusCompleted,
	StatusAbsentWithNoticeCounted,
	StatusCancelled,
	StatusAbsentWithNoticeNotCounted,
	StatusFreeClassConsumed,
	StatusAbsentWithoutNotice,
}

// ParseClassStatus accepts either the stored label ("Absent w/ntc counted") or the
// identifier form ("AbsentWithNoticeCounted"), case-insensitively.
func ParseClassStatus(raw string) (ClassStatus, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range ClassStatuses {
		if strings.EqualFold(raw, string(s)) || strings.EqualFold(raw, classStatusTraits[s].key) {
			return s, true
		}
	}
	return "", false
}

// Valid reports whether s is a known status.
func (s ClassStatus) Valid() bool {
	_, ok := classStatusTraits[s]
	return ok
}

// Consumes reports whether a class in this status counts against the purchased balance.
func (s ClassStatus) Consumes() bool {
	return classStatusTraits[s].consumes
}

// Terminal reports whether no further business action is expected. Terminal
// statuses can still be changed.
func (s ClassStatus) Terminal() bool {
	return classStatusTraits[s].terminal
}

// TriggersStatsRecalculation reports whether entering s requires the student's
// aggregate stats to be recomputed.
func (s ClassStatus) TriggersStatsRecalculation() bool {
	return classStatusTraits[s].recompute
}

// ConsumingStatuses returns the statuses counted by the quota ledger.
func ConsumingStatuses() []ClassStatus {
	out := make([]ClassStatus, 0, 3)
	for _, s := range ClassStatuses {
		if s.Consumes() {
			out = append(out, s)
		}
	}
	return out
}
