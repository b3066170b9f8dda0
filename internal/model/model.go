package model

import "time"

// Scope distinguishes whose schedule a view belongs to. The string values are
// load-bearing: they are embedded verbatim in shared cache keys, so they must
// stay stable across every process version that shares a cache.
type Scope string

const (
	// ScopeGroup is one group's shared calendar.
	ScopeGroup Scope = "GROUP"
	// ScopeMyGroup is a user's merged view across all groups they belong to.
	ScopeMyGroup Scope = "MY_GROUP"
	// ScopeMy is a user's personal calendar.
	ScopeMy Scope = "MY"
)

// Importance orders slots within a day; higher sorts first in month views.
type Importance string

const (
	ImportanceLow    Importance = "LOW"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceHigh   Importance = "HIGH"
)

// Rank returns a sortable weight for the importance. Unknown values rank
// lowest rather than erroring; they can appear when an older process reads
// rows written by a newer one.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	case ImportanceLow:
		return 1
	default:
		return 0
	}
}

// Status is the lifecycle state of a slot.
type Status string

const (
	StatusPlanned  Status = "PLANNED"
	StatusDone     Status = "DONE"
	StatusCanceled Status = "CANCELED"
)

// Role is a user's standing within a group.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleMember Role = "MEMBER"
)

// Group is a shared calendar owned by one user and joined by members.
type Group struct {
	ID        int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

// Member is a group membership row.
type Member struct {
	GroupID  int64
	UserID   int64
	Role     Role
	JoinedAt time.Time
}

// Slot is a dated calendar entry. GroupID is zero for personal slots. For a
// recurring slot, StartAt/EndAt describe the first occurrence and RRule the
// repetition; range queries return one expanded Slot per occurrence, all
// carrying the same ID.
type Slot struct {
	ID         int64
	GroupID    int64
	UserID     int64
	Title      string
	Content    string
	StartAt    time.Time
	EndAt      time.Time
	Importance Importance
	Status     Status
	RRule      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Date returns the calendar day the slot starts on, in the slot's own zone.
func (s Slot) Date() time.Time {
	return time.Date(s.StartAt.Year(), s.StartAt.Month(), s.StartAt.Day(), 0, 0, 0, 0, s.StartAt.Location())
}

// SlotEditor marks a user who may edit a slot they do not own.
type SlotEditor struct {
	SlotID    int64
	UserID    int64
	GrantedAt time.Time
}

// SlotSummary is the read-only projection cached in month views. It carries
// just enough to render a calendar cell; never the full editable slot.
type SlotSummary struct {
	SlotID     int64      `json:"slotId"`
	Title      string     `json:"title"`
	StartAt    time.Time  `json:"startAt"`
	Importance Importance `json:"importance"`
}

// MonthDay is one populated day within a cached month view. TopSlots holds at
// most two summaries sorted by descending importance; SlotCount is the total
// number of slots on the day, not the truncated length.
type MonthDay struct {
	Date      time.Time     `json:"date"`
	SlotCount int           `json:"slotCount"`
	TopSlots  []SlotSummary `json:"topSlots"`
}

// DaySlot is a full slot plus its editor annotations, as returned by day
// views for group scope.
type DaySlot struct {
	Slot
	Editors []SlotEditor
}

// DayView is the uncached single-day read: every slot on the date, no top-N
// reduction.
type DayView struct {
	Date      time.Time
	SlotCount int
	Slots     []DaySlot
}
