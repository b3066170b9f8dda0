// Package web is the HTTP front door: schedule reads, slot mutations, the
// ICS export feed, and the socket endpoint. Handlers validate input, resolve
// the requester from the bearer credential, call the aggregation service or
// record store, and hand committed mutations to the sync dispatcher.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slotcal/internal/agg"
	"slotcal/internal/auth"
	"slotcal/internal/config"
	"slotcal/internal/gateway"
	"slotcal/internal/ics"
	appLog "slotcal/internal/log"
	"slotcal/internal/model"
	"slotcal/internal/notify"
	"slotcal/internal/store"
)

// Server wires the HTTP routes to the core components.
type Server struct {
	cfg     *config.Config
	svc     *agg.Service
	records *store.Store
	disp    *notify.Dispatcher
	tokens  auth.Verifier
	gw      *gateway.Gateway
	loc     *time.Location
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *agg.Service, records *store.Store, disp *notify.Dispatcher, tokens auth.Verifier, gw *gateway.Gateway, loc *time.Location) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		records: records,
		disp:    disp,
		tokens:  tokens,
		gw:      gw,
		loc:     loc,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.gw.HandleWS)

	// Groups & membership
	s.mux.HandleFunc("POST /api/groups", s.withAuth(s.createGroup))
	s.mux.HandleFunc("POST /api/groups/{groupID}/members", s.withAuth(s.addMember))

	// Schedule reads
	s.mux.HandleFunc("GET /api/groups/{groupID}/schedules/month", s.withAuth(s.groupMonth))
	s.mux.HandleFunc("GET /api/groups/{groupID}/schedules/day", s.withAuth(s.groupDay))
	s.mux.HandleFunc("GET /api/my/schedules/month", s.withAuth(s.myMonth))
	s.mux.HandleFunc("GET /api/my-groups/schedules/month", s.withAuth(s.myGroupsMonth))

	// Slot mutations
	s.mux.HandleFunc("POST /api/groups/{groupID}/slots", s.withAuth(s.createGroupSlot))
	s.mux.HandleFunc("POST /api/my/slots", s.withAuth(s.createMySlot))
	s.mux.HandleFunc("PUT /api/slots/{slotID}", s.withAuth(s.updateSlot))
	s.mux.HandleFunc("PATCH /api/slots/{slotID}/content", s.withAuth(s.editContent))
	s.mux.HandleFunc("POST /api/slots/{slotID}/editors", s.withAuth(s.addEditor))

	// Export
	s.mux.HandleFunc("GET /api/groups/{groupID}/calendar.ics", s.withAuth(s.exportICS))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// authedHandler is an HTTP handler with the requester's identity resolved.
// Identity travels as an explicit argument, never as ambient request state.
type authedHandler func(w http.ResponseWriter, r *http.Request, requesterID int64)

// withAuth verifies the bearer credential and threads the user id through.
func (s *Server) withAuth(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.FromBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer credential")
			return
		}
		userID, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer credential")
			return
		}
		h(w, r, userID)
	}
}

// --- groups ---

type createGroupRequest struct {
	Name string `json:"name"`
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request, requesterID int64) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	group, err := s.records.CreateGroup(req.Name, requesterID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": group.ID, "name": group.Name, "ownerId": group.OwnerID})
}

type addMemberRequest struct {
	UserID int64 `json:"userId"`
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request, requesterID int64) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	group, err := s.records.GetGroup(groupID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if group.OwnerID != requesterID {
		writeError(w, http.StatusForbidden, "only the group owner may add members")
		return
	}

	if err := s.records.AddMember(groupID, req.UserID, model.RoleMember); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groupId": groupID, "userId": req.UserID})
}

// --- schedule reads ---

func (s *Server) groupMonth(w http.ResponseWriter, r *http.Request, requesterID int64) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	year, month := s.yearMonth(r)

	days, err := s.svc.GetMonth(r.Context(), model.ScopeGroup, groupID, year, month, requesterID)
	if err != nil {
		s.writeAggError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{Year: year, Month: int(month), Days: days})
}

func (s *Server) myMonth(w http.ResponseWriter, r *http.Request, requesterID int64) {
	year, month := s.yearMonth(r)
	days, err := s.svc.GetMonth(r.Context(), model.ScopeMy, requesterID, year, month, requesterID)
	if err != nil {
		s.writeAggError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{Year: year, Month: int(month), Days: days})
}

func (s *Server) myGroupsMonth(w http.ResponseWriter, r *http.Request, requesterID int64) {
	year, month := s.yearMonth(r)
	days, err := s.svc.GetMonth(r.Context(), model.ScopeMyGroup, requesterID, year, month, requesterID)
	if err != nil {
		s.writeAggError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{Year: year, Month: int(month), Days: days})
}

func (s *Server) groupDay(w http.ResponseWriter, r *http.Request, requesterID int64) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	year, month := s.yearMonth(r)
	day := parseIntDefault(r.URL.Query().Get("day"), time.Now().In(s.loc).Day())

	view, err := s.svc.GetDay(r.Context(), model.ScopeGroup, groupID, year, month, day, requesterID)
	if err != nil {
		s.writeAggError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dayViewDTO(view))
}

// monthResponse is the JSON shape for month reads.
type monthResponse struct {
	Year  int              `json:"year"`
	Month int              `json:"month"`
	Days  []model.MonthDay `json:"days"`
}

type daySlotJSON struct {
	ID         int64            `json:"id"`
	GroupID    int64            `json:"groupId,omitempty"`
	UserID     int64            `json:"userId"`
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	StartAt    time.Time        `json:"startAt"`
	EndAt      time.Time        `json:"endAt"`
	Importance model.Importance `json:"importance"`
	Status     model.Status     `json:"status"`
	RRule      string           `json:"rrule,omitempty"`
	EditorIDs  []int64          `json:"editorIds,omitempty"`
}

type dayViewJSON struct {
	Date      time.Time     `json:"date"`
	SlotCount int           `json:"slotCount"`
	Slots     []daySlotJSON `json:"slots"`
}

func dayViewDTO(view model.DayView) dayViewJSON {
	out := dayViewJSON{Date: view.Date, SlotCount: view.SlotCount, Slots: []daySlotJSON{}}
	for _, ds := range view.Slots {
		item := daySlotJSON{
			ID:         ds.ID,
			GroupID:    ds.GroupID,
			UserID:     ds.UserID,
			Title:      ds.Title,
			Content:    ds.Content,
			StartAt:    ds.StartAt,
			EndAt:      ds.EndAt,
			Importance: ds.Importance,
			Status:     ds.Status,
			RRule:      ds.RRule,
		}
		for _, e := range ds.Editors {
			item.EditorIDs = append(item.EditorIDs, e.UserID)
		}
		out.Slots = append(out.Slots, item)
	}
	return out
}

// --- slot mutations ---

type slotRequest struct {
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	StartAt    time.Time        `json:"startAt"`
	EndAt      time.Time        `json:"endAt"`
	Importance model.Importance `json:"importance"`
	Status     model.Status     `json:"status"`
	RRule      string           `json:"rrule"`
}

func (req *slotRequest) validate() string {
	if strings.TrimSpace(req.Title) == "" {
		return "title is required"
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		return "startAt and endAt are required"
	}
	if req.EndAt.Before(req.StartAt) {
		return "endAt is before startAt"
	}
	switch req.Importance {
	case model.ImportanceLow, model.ImportanceMedium, model.ImportanceHigh:
	case "":
		req.Importance = model.ImportanceMedium
	default:
		return "unknown importance"
	}
	switch req.Status {
	case model.StatusPlanned, model.StatusDone, model.StatusCanceled:
	case "":
		req.Status = model.StatusPlanned
	default:
		return "unknown status"
	}
	return ""
}

func (s *Server) createGroupSlot(w http.ResponseWriter, r *http.Request, requesterID int64) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	member, err := s.records.IsMember(groupID, requesterID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return
	}

	s.createSlot(w, r, requesterID, groupID)
}

func (s *Server) createMySlot(w http.ResponseWriter, r *http.Request, requesterID int64) {
	s.createSlot(w, r, requesterID, 0)
}

func (s *Server) createSlot(w http.ResponseWriter, r *http.Request, requesterID, groupID int64) {
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	slot, err := s.records.CreateSlot(&model.Slot{
		GroupID:    groupID,
		UserID:     requesterID,
		Title:      req.Title,
		Content:    req.Content,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Importance: req.Importance,
		Status:     req.Status,
		RRule:      req.RRule,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.disp.SlotCreated(r.Context(), slot)
	writeJSON(w, http.StatusCreated, map[string]any{"id": slot.ID})
}

func (s *Server) updateSlot(w http.ResponseWriter, r *http.Request, requesterID int64) {
	slot, ok := s.loadEditableSlot(w, r, requesterID)
	if !ok {
		return
	}

	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	slot.Title = req.Title
	slot.Content = req.Content
	slot.StartAt = req.StartAt
	slot.EndAt = req.EndAt
	slot.Importance = req.Importance
	slot.Status = req.Status
	slot.RRule = req.RRule

	if err := s.records.UpdateSlot(slot); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.disp.SlotUpdated(r.Context(), slot)
	writeJSON(w, http.StatusOK, map[string]any{"id": slot.ID})
}

type editContentRequest struct {
	Content string `json:"content"`
}

func (s *Server) editContent(w http.ResponseWriter, r *http.Request, requesterID int64) {
	slot, ok := s.loadEditableSlot(w, r, requesterID)
	if !ok {
		return
	}

	var req editContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.records.UpdateSlotContent(slot.ID, req.Content); err != nil {
		s.writeStoreError(w, err)
		return
	}
	slot.Content = req.Content

	s.disp.ContentEdited(r.Context(), slot)
	writeJSON(w, http.StatusOK, map[string]any{"id": slot.ID})
}

type addEditorRequest struct {
	UserID int64 `json:"userId"`
}

func (s *Server) addEditor(w http.ResponseWriter, r *http.Request, requesterID int64) {
	slot, ok := s.loadEditableSlot(w, r, requesterID)
	if !ok {
		return
	}
	if slot.GroupID == 0 {
		writeError(w, http.StatusBadRequest, "personal slots have no editors")
		return
	}

	var req addEditorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	member, err := s.records.IsMember(slot.GroupID, req.UserID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !member {
		writeError(w, http.StatusBadRequest, "editor must be a group member")
		return
	}

	granted, err := s.records.AddEditor(slot.ID, req.UserID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.disp.EditorAssigned(r.Context(), slot, granted)
	writeJSON(w, http.StatusOK, map[string]any{"slotId": slot.ID, "userId": req.UserID, "granted": granted})
}

// loadEditableSlot resolves the {slotID} path value and checks edit rights:
// the slot's creator, the owning group's owner, and granted editors may
// mutate it.
func (s *Server) loadEditableSlot(w http.ResponseWriter, r *http.Request, requesterID int64) (*model.Slot, bool) {
	slotID, ok := pathID(w, r, "slotID")
	if !ok {
		return nil, false
	}

	slot, err := s.records.GetSlot(slotID)
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}

	allowed, err := s.canEdit(slot, requesterID)
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "no edit rights on this slot")
		return nil, false
	}
	return slot, true
}

func (s *Server) canEdit(slot *model.Slot, requesterID int64) (bool, error) {
	if slot.UserID == requesterID {
		return true, nil
	}
	if slot.GroupID == 0 {
		return false, nil
	}

	group, err := s.records.GetGroup(slot.GroupID)
	if err != nil {
		return false, err
	}
	if group.OwnerID == requesterID {
		return true, nil
	}

	editors, err := s.records.ListEditors(slot.ID)
	if err != nil {
		return false, err
	}
	for _, e := range editors {
		if e.UserID == requesterID {
			return true, nil
		}
	}
	return false, nil
}

// --- export ---

func (s *Server) exportICS(w http.ResponseWriter, r *http.Request, requesterID int64) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	member, err := s.records.IsMember(groupID, requesterID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return
	}

	group, err := s.records.GetGroup(groupID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	year, month := s.yearMonth(r)
	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	slots, err := s.records.SlotsForGroupRange(groupID, start, start.AddDate(0, 1, 0))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	cal := ics.BuildMonthCalendar(group, slots)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(cal.Serialize())); err != nil {
		appLog.Error("ics export write failed", err, "group_id", groupID)
	}
}

// --- helpers ---

// yearMonth reads year/month query params, defaulting to the current month
// in the canonical zone.
func (s *Server) yearMonth(r *http.Request) (int, time.Month) {
	now := time.Now().In(s.loc)
	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 {
		month = int(now.Month())
	}
	return year, time.Month(month)
}

func (s *Server) writeAggError(w http.ResponseWriter, err error) {
	if errors.Is(err, agg.ErrAccessDenied) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	appLog.Error("schedule read failed", err)
	writeError(w, http.StatusInternalServerError, "schedule read failed")
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	appLog.Error("record store call failed", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
