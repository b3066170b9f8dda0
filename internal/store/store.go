// Package store is the record store: groups, memberships and slots persisted
// in sqlite, with range queries that expand recurring slots into dated
// occurrences.
package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"slotcal/internal/model"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store handles database operations.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateGroup creates a group and its owner membership in one transaction.
func (s *Store) CreateGroup(name string, ownerID int64) (*model.Group, error) {
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO slot_groups (name, owner_id, created_at) VALUES (?, ?, ?)",
		name, ownerID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("group id: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		id, ownerID, model.RoleOwner, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &model.Group{ID: id, Name: name, OwnerID: ownerID, CreatedAt: now}, nil
}

// GetGroup retrieves a group by id.
func (s *Store) GetGroup(id int64) (*model.Group, error) {
	var g model.Group
	err := s.db.QueryRow(
		"SELECT id, name, owner_id, created_at FROM slot_groups WHERE id = ?",
		id,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// ListGroups returns all groups (used by the cache warmer).
func (s *Store) ListGroups() ([]model.Group, error) {
	rows, err := s.db.Query("SELECT id, name, owner_id, created_at FROM slot_groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// AddMember adds a user to a group. Adding an existing member is a no-op.
func (s *Store) AddMember(groupID, userID int64, role model.Role) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		groupID, userID, role, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// IsMember reports whether userID belongs to groupID.
func (s *Store) IsMember(groupID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return n > 0, nil
}

// GroupIDsForUser returns the ids of every group the user belongs to.
func (s *Store) GroupIDsForUser(userID int64) ([]int64, error) {
	rows, err := s.db.Query("SELECT group_id FROM members WHERE user_id = ? ORDER BY group_id", userID)
	if err != nil {
		return nil, fmt.Errorf("groups for user: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const slotColumns = "id, group_id, user_id, title, content, start_at, end_at, importance, status, rrule, created_at, updated_at"

// CreateSlot inserts a slot and returns it with its assigned id.
func (s *Store) CreateSlot(slot *model.Slot) (*model.Slot, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO slots (group_id, user_id, title, content, start_at, end_at, importance, status, rrule, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.GroupID, slot.UserID, slot.Title, slot.Content,
		slot.StartAt.UTC(), slot.EndAt.UTC(), slot.Importance, slot.Status, slot.RRule,
		now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("slot id: %w", err)
	}

	out := *slot
	out.ID = id
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

// GetSlot retrieves a slot by id.
func (s *Store) GetSlot(id int64) (*model.Slot, error) {
	row := s.db.QueryRow("SELECT "+slotColumns+" FROM slots WHERE id = ?", id)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// UpdateSlot replaces every editable field of a slot (the "full update"
// mutation: time, importance and status may all change).
func (s *Store) UpdateSlot(slot *model.Slot) error {
	res, err := s.db.Exec(
		`UPDATE slots SET title = ?, content = ?, start_at = ?, end_at = ?, importance = ?, status = ?, rrule = ?, updated_at = ?
		 WHERE id = ?`,
		slot.Title, slot.Content, slot.StartAt.UTC(), slot.EndAt.UTC(),
		slot.Importance, slot.Status, slot.RRule, time.Now().UTC(), slot.ID,
	)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return requireRow(res)
}

// UpdateSlotContent changes only the free-text content (the "detail edit"
// mutation: month summaries are unaffected).
func (s *Store) UpdateSlotContent(id int64, content string) error {
	res, err := s.db.Exec(
		"UPDATE slots SET content = ?, updated_at = ? WHERE id = ?",
		content, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update slot content: %w", err)
	}
	return requireRow(res)
}

// AddEditor grants userID edit rights on a slot. Reports whether the grant
// was newly created (false when the user was already an editor).
func (s *Store) AddEditor(slotID, userID int64) (bool, error) {
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO slot_editors (slot_id, user_id, granted_at) VALUES (?, ?, ?)",
		slotID, userID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("add editor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add editor rows: %w", err)
	}
	return n > 0, nil
}

// ListEditors returns the editor annotations for a slot.
func (s *Store) ListEditors(slotID int64) ([]model.SlotEditor, error) {
	rows, err := s.db.Query(
		"SELECT slot_id, user_id, granted_at FROM slot_editors WHERE slot_id = ? ORDER BY user_id",
		slotID,
	)
	if err != nil {
		return nil, fmt.Errorf("list editors: %w", err)
	}
	defer rows.Close()

	var editors []model.SlotEditor
	for rows.Next() {
		var e model.SlotEditor
		if err := rows.Scan(&e.SlotID, &e.UserID, &e.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan editor: %w", err)
		}
		editors = append(editors, e)
	}
	return editors, rows.Err()
}

// SlotsForGroupRange returns all of a group's slot occurrences starting
// within [start, end), recurring slots expanded.
func (s *Store) SlotsForGroupRange(groupID int64, start, end time.Time) ([]model.Slot, error) {
	return s.rangeQuery(
		"group_id = ?", []any{groupID},
		start, end,
	)
}

// SlotsForUserRange returns a user's personal slot occurrences starting
// within [start, end).
func (s *Store) SlotsForUserRange(userID int64, start, end time.Time) ([]model.Slot, error) {
	return s.rangeQuery(
		"group_id = 0 AND user_id = ?", []any{userID},
		start, end,
	)
}

// SlotsForUserGroupsRange returns slot occurrences across every group the
// user belongs to, starting within [start, end).
func (s *Store) SlotsForUserGroupsRange(userID int64, start, end time.Time) ([]model.Slot, error) {
	return s.rangeQuery(
		"group_id IN (SELECT group_id FROM members WHERE user_id = ?)", []any{userID},
		start, end,
	)
}

// rangeQuery fetches slots matching the scope clause whose occurrences start
// in [start, end). Non-recurring slots are filtered in SQL; recurring slots
// are fetched separately and expanded in-process (see expand.go), because an
// RRULE cannot be evaluated inside the query.
func (s *Store) rangeQuery(where string, args []any, start, end time.Time) ([]model.Slot, error) {
	startUTC := start.UTC()
	endUTC := end.UTC()

	plainQ := "SELECT " + slotColumns + " FROM slots WHERE " + where +
		" AND rrule = '' AND start_at >= ? AND start_at < ? ORDER BY start_at, id"
	plainArgs := append(append([]any{}, args...), startUTC, endUTC)

	slots, err := s.querySlots(plainQ, plainArgs...)
	if err != nil {
		return nil, err
	}

	recurQ := "SELECT " + slotColumns + " FROM slots WHERE " + where +
		" AND rrule != '' AND start_at < ? ORDER BY start_at, id"
	recurArgs := append(append([]any{}, args...), endUTC)

	recurring, err := s.querySlots(recurQ, recurArgs...)
	if err != nil {
		return nil, err
	}

	for _, base := range recurring {
		occ, err := expandOccurrences(base, startUTC, endUTC)
		if err != nil {
			return nil, fmt.Errorf("expand slot %d: %w", base.ID, err)
		}
		slots = append(slots, occ...)
	}

	return slots, nil
}

func (s *Store) querySlots(query string, args ...any) ([]model.Slot, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*model.Slot, error) {
	var slot model.Slot
	err := row.Scan(
		&slot.ID, &slot.GroupID, &slot.UserID, &slot.Title, &slot.Content,
		&slot.StartAt, &slot.EndAt, &slot.Importance, &slot.Status, &slot.RRule,
		&slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
