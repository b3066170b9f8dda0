package cache

import (
	"testing"
	"time"

	"slotcal/internal/model"
)

// Key strings are shared with every other process (and with data already in
// the cache), so the exact rendering is pinned here.
func TestViewKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  ViewKey
		want string
	}{
		{
			name: "group view",
			key:  GroupKey(42, 2025, time.June),
			want: "GROUP:42:2025:6",
		},
		{
			name: "my-groups merged view",
			key:  MyGroupKey(7, 2025, time.December),
			want: "MY_GROUP:7:2025:12",
		},
		{
			name: "personal view",
			key:  MyKey(99, 2026, time.January),
			want: "MY:99:2026:1",
		},
		{
			name: "month is never zero padded",
			key:  ViewKey{Scope: model.ScopeGroup, OwnerID: 1, Year: 2025, Month: time.March},
			want: "GROUP:1:2025:3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
