package main

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// -----------------------------
// Helper functions
// -----------------------------

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// getUserIDFromContext expects AuthMiddleware to set "user_id" (uint) in context.
// If not present -> unauthorized.
func getUserIDFromContext(c *gin.Context) (uint, bool) {
	uid, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	switch v := uid.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func eventIDParam(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id64), true
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validEmail(s string) bool {
	return strings.Contains(s, "@")
}

// userCanAccessEvent reports whether the user is the owner or an invited
// collaborator. Both roles carry identical mutation rights on the event and
// its board; only event deletion is owner-gated.
func userCanAccessEvent(tx *gorm.DB, ev *Event, userID uint) (bool, error) {
	if ev.OwnerID == userID {
		return true, nil
	}

	var user User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	var count int64
	err := tx.Model(&EventCollaborator{}).
		Where("event_id = ? AND email = ?", ev.ID, user.Email).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// -----------------------------
// Profile
// -----------------------------

func GetMe(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var user User
	if err := DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "user not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, user)
}

// -----------------------------
// Events
// -----------------------------

type CreateEventRequest struct {
	Title       string `json:"title" binding:"required"`
	EventType   string `json:"event_type"`
	Location    string `json:"location"`
	Description string `json:"description"`
	StartDate   string `json:"start_date" binding:"required"` // e.g. "Dec 12, 2025"
	EndDate     string `json:"end_date"`
	IsMultiDay  bool   `json:"is_multi_day"`
}

// parseEventDates turns the request's date strings into typed days. End date
// is only meaningful for multi-day events and must not precede the start.
func parseEventDates(startRaw, endRaw string, multiDay bool) (DateOnly, *DateOnly, string) {
	start, ok := ParseFlexibleDate(startRaw)
	if !ok {
		return DateOnly{}, nil, "invalid start_date (use a date like \"Dec 12, 2025\")"
	}

	if !multiDay {
		return start, nil, ""
	}

	if strings.TrimSpace(endRaw) == "" {
		return start, nil, ""
	}
	end, ok := ParseFlexibleDate(endRaw)
	if !ok {
		return DateOnly{}, nil, "invalid end_date (use a date like \"Dec 14, 2025\")"
	}
	if end.Before(start) {
		return DateOnly{}, nil, "end_date must not be before start_date"
	}
	return start, &end, ""
}

func CreateEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body CreateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	start, end, msg := parseEventDates(body.StartDate, body.EndDate, body.IsMultiDay)
	if msg != "" {
		jsonError(c, http.StatusBadRequest, msg)
		return
	}

	ev := Event{
		OwnerID:     userID,
		Title:       strings.TrimSpace(body.Title),
		EventType:   strings.TrimSpace(body.EventType),
		Location:    body.Location,
		Description: body.Description,
		StartDate:   start,
		EndDate:     end,
		IsMultiDay:  body.IsMultiDay,
		Columns:     ColumnList{},
	}

	if err := DB.Create(&ev).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not create event: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, ev)
}

// visibleEvents fetches everything the user may see: events they own plus
// events whose collaborator set contains their email.
func visibleEvents(userID uint) ([]Event, error) {
	var user User
	if err := DB.First(&user, userID).Error; err != nil {
		return nil, err
	}

	var owned []Event
	if err := DB.Where("owner_id = ?", userID).Find(&owned).Error; err != nil {
		return nil, err
	}

	var shared []Event
	sub := DB.Model(&EventCollaborator{}).Select("event_id").Where("email = ?", user.Email)
	if err := DB.Where("id IN (?) AND owner_id <> ?", sub, userID).Find(&shared).Error; err != nil {
		return nil, err
	}

	return append(owned, shared...), nil
}

// GetEvents returns every event visible to the caller (owned + invited),
// partitioned into live / upcoming / past buckets.
func GetEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	events, err := visibleEvents(userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, ClassifyEvents(events, Today()))
}

// -----------------------------
// Search
// -----------------------------
//
// GET /api/events/search?keyword=&from=&to=
//
// - keyword matches event title, type, location, description and the text of
//   board tasks, case-insensitive
// - from/to bound the event start date (inclusive), any accepted date format

type SearchRequest struct {
	Keyword string `form:"keyword"`
	From    string `form:"from"`
	To      string `form:"to"`
}

func eventMatchesKeyword(ev *Event, keyword string) bool {
	if keyword == "" {
		return true
	}
	for _, field := range []string{ev.Title, ev.EventType, ev.Location, ev.Description} {
		if strings.Contains(strings.ToLower(field), keyword) {
			return true
		}
	}
	for _, col := range ev.Columns {
		if strings.Contains(strings.ToLower(col.Title), keyword) {
			return true
		}
		for _, task := range col.Tasks {
			if strings.Contains(strings.ToLower(task.Text), keyword) {
				return true
			}
		}
	}
	return false
}

func SearchEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	var from, to DateOnly
	if strings.TrimSpace(req.From) != "" {
		parsed, ok := ParseFlexibleDate(req.From)
		if !ok {
			jsonError(c, http.StatusBadRequest, "invalid 'from' date")
			return
		}
		from = parsed
	}
	if strings.TrimSpace(req.To) != "" {
		parsed, ok := ParseFlexibleDate(req.To)
		if !ok {
			jsonError(c, http.StatusBadRequest, "invalid 'to' date")
			return
		}
		to = parsed
	}

	events, err := visibleEvents(userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	keyword := strings.ToLower(strings.TrimSpace(req.Keyword))
	results := make([]Event, 0)
	for _, ev := range events {
		if !from.IsZero() && ev.StartDate.Before(from) {
			continue
		}
		if !to.IsZero() && ev.StartDate.After(to) {
			continue
		}
		if eventMatchesKeyword(&ev, keyword) {
			results = append(results, ev)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].StartDate.Before(results[j].StartDate)
	})

	c.JSON(http.StatusOK, results)
}

func GetEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, ok := eventIDParam(c)
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid event id")
		return
	}

	var ev Event
	if err := DB.Preload("Collaborators").First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	allowed, err := userCanAccessEvent(DB, &ev, userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	if !allowed {
		jsonError(c, http.StatusForbidden, "not a participant of this event")
		return
	}

	c.JSON(http.StatusOK, ev)
}

func UpdateEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, ok := eventIDParam(c)
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid event id")
		return
	}

	var body CreateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	start, end, msg := parseEventDates(body.StartDate, body.EndDate, body.IsMultiDay)
	if msg != "" {
		jsonError(c, http.StatusBadRequest, msg)
		return
	}

	var ev Event
	if err := DB.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	allowed, err := userCanAccessEvent(DB, &ev, userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	if !allowed {
		jsonError(c, http.StatusForbidden, "not a participant of this event")
		return
	}

	ev.Title = strings.TrimSpace(body.Title)
	ev.EventType = strings.TrimSpace(body.EventType)
	ev.Location = body.Location
	ev.Description = body.Description
	ev.StartDate = start
	ev.IsMultiDay = body.IsMultiDay
	if body.IsMultiDay {
		ev.EndDate = end
	} else {
		// Single-day events collapse to the start date.
		ev.EndDate = nil
	}

	if err := DB.Save(&ev).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not update event: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, ev)
}

func DeleteEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, ok := eventIDParam(c)
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid event id")
		return
	}

	var ev Event
	if err := DB.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	// Only the owner can delete; the embedded board goes with the row.
	if ev.OwnerID != userID {
		jsonError(c, http.StatusForbidden, "only the owner can delete the event")
		return
	}

	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", ev.ID).Delete(&EventCollaborator{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Event{}, ev.ID).Error
	}); err != nil {
		jsonError(c, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

// -----------------------------
// Collaborators
// -----------------------------

type InviteRequest struct {
	Email string `json:"email" binding:"required"`
}

func InviteCollaborator(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, ok := eventIDParam(c)
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid event id")
		return
	}

	var body InviteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	email := normalizeEmail(body.Email)
	if !validEmail(email) {
		jsonError(c, http.StatusBadRequest, "invalid email address")
		return
	}

	var ev Event
	if err := DB.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	// Only the owner hands out invites.
	if ev.OwnerID != userID {
		jsonError(c, http.StatusForbidden, "only the owner can invite collaborators")
		return
	}

	var owner User
	if err := DB.First(&owner, ev.OwnerID).Error; err == nil && owner.Email == email {
		jsonError(c, http.StatusBadRequest, "owner is already a participant")
		return
	}

	// Idempotent: inviting the same address twice leaves the set unchanged.
	var existing EventCollaborator
	err := DB.Where("event_id = ? AND email = ?", eventID, email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "already invited"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	collab := EventCollaborator{EventID: eventID, Email: email}
	if err := DB.Create(&collab).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not invite: "+err.Error())
		return
	}

	log.Info().Uint("event_id", eventID).Str("email", email).Msg("collaborator invited")
	c.JSON(http.StatusOK, gin.H{"message": "collaborator invited"})
}

// LeaveEvent removes the calling collaborator from an event. The owner cannot
// leave; they delete the event instead.
func LeaveEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, ok := eventIDParam(c)
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid event id")
		return
	}

	var ev Event
	if err := DB.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	if ev.OwnerID == userID {
		jsonError(c, http.StatusBadRequest, "the owner cannot leave their own event")
		return
	}

	var user User
	if err := DB.First(&user, userID).Error; err != nil {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	res := DB.Where("event_id = ? AND email = ?", eventID, user.Email).Delete(&EventCollaborator{})
	if res.Error != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+res.Error.Error())
		return
	}
	if res.RowsAffected == 0 {
		jsonError(c, http.StatusNotFound, "not a collaborator of this event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "left event"})
}
