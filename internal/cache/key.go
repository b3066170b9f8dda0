package cache

import (
	"fmt"
	"time"

	"slotcal/internal/model"
)

// ViewKey identifies one cached month view: one scope, one owner, one
// calendar month.
type ViewKey struct {
	Scope   model.Scope
	OwnerID int64
	Year    int
	Month   time.Month
}

// String renders the key in the shared colon-joined format, e.g.
// "GROUP:42:2025:6". The format is load-bearing: every process computing a
// key for the same logical view must produce an identical string, and
// existing cached data uses unpadded month numbers.
func (k ViewKey) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", k.Scope, k.OwnerID, k.Year, int(k.Month))
}

// GroupKey returns the ViewKey for a group's month view.
func GroupKey(groupID int64, year int, month time.Month) ViewKey {
	return ViewKey{Scope: model.ScopeGroup, OwnerID: groupID, Year: year, Month: month}
}

// MyGroupKey returns the ViewKey for a user's merged all-groups month view.
func MyGroupKey(userID int64, year int, month time.Month) ViewKey {
	return ViewKey{Scope: model.ScopeMyGroup, OwnerID: userID, Year: year, Month: month}
}

// MyKey returns the ViewKey for a user's personal month view.
func MyKey(userID int64, year int, month time.Month) ViewKey {
	return ViewKey{Scope: model.ScopeMy, OwnerID: userID, Year: year, Month: month}
}
