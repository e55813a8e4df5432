package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Handler tests run against a throwaway SQLite database wired into the same
// global handle the handlers use, so they exercise the real routes end to end.
func setupTestApp(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "planboard.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, MigrateDB(db))
	DB = db

	r := gin.New()
	SetupRoutes(r)
	return r
}

func createVerifiedUser(t *testing.T, email, username string) (User, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := User{
		FirstName:    "Test",
		LastName:     "User",
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Verified:     true,
	}
	require.NoError(t, DB.Create(&user).Error)

	token, err := GenerateToken(user.ID)
	require.NoError(t, err)
	return user, token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createEvent(t *testing.T, r *gin.Engine, token string, body gin.H) Event {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/api/events", token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var ev Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	return ev
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	r := setupTestApp(t)

	signup := gin.H{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"username":   "ada",
		"email":      "  Ada@Example.COM ",
		"password":   "secret123",
	}
	w := doJSON(t, r, http.MethodPost, "/signup", "", signup)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Email is normalized before it is stored.
	var user User
	require.NoError(t, DB.Where("username = ?", "ada").First(&user).Error)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.False(t, user.Verified)
	require.NotEmpty(t, user.VerifyToken)

	// Login is gated on verification.
	login := gin.H{"email": "ada@example.com", "password": "secret123"}
	w = doJSON(t, r, http.MethodPost, "/login", "", login)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, "/verify", "", gin.H{"token": user.VerifyToken})
	require.Equal(t, http.StatusOK, w.Code)

	// Token is single use.
	w = doJSON(t, r, http.MethodPost, "/verify", "", gin.H{"token": user.VerifyToken})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/login", "", login)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])

	w = doJSON(t, r, http.MethodGet, "/api/me", resp["token"], nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "ada@example.com", me.Email)
}

func TestSignupValidation(t *testing.T) {
	r := setupTestApp(t)

	base := gin.H{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"username":   "ada",
		"email":      "ada@example.com",
		"password":   "secret123",
	}

	tests := []struct {
		name     string
		mutate   func(gin.H)
		wantCode int
	}{
		{"missing first name", func(b gin.H) { delete(b, "first_name") }, http.StatusBadRequest},
		{"weak password", func(b gin.H) { b["password"] = "12345" }, http.StatusBadRequest},
		{"malformed email", func(b gin.H) { b["email"] = "not-an-email" }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := gin.H{}
			for k, v := range base {
				body[k] = v
			}
			tt.mutate(body)

			w := doJSON(t, r, http.MethodPost, "/signup", "", body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}

	// Duplicate email is rejected on the second attempt.
	w := doJSON(t, r, http.MethodPost, "/signup", "", base)
	require.Equal(t, http.StatusCreated, w.Code)
	base["username"] = "ada2"
	w = doJSON(t, r, http.MethodPost, "/signup", "", base)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEventsBuckets(t *testing.T) {
	r := setupTestApp(t)
	_, token := createVerifiedUser(t, "owner@example.com", "owner")

	now := time.Now()
	day := func(offsetDays int) string {
		return DateOnlyFromTime(now.AddDate(0, 0, offsetDays)).String()
	}

	createEvent(t, r, token, gin.H{"title": "live now", "start_date": day(-1), "end_date": day(1), "is_multi_day": true})
	createEvent(t, r, token, gin.H{"title": "last week", "start_date": day(-7)})
	createEvent(t, r, token, gin.H{"title": "next week", "start_date": day(7)})
	createEvent(t, r, token, gin.H{
		"title":      "next year",
		"start_date": DateOnlyFromTime(now.AddDate(0, 6, 0)).String(),
	})

	w := doJSON(t, r, http.MethodGet, "/api/events", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var buckets Buckets
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buckets))

	assert.Equal(t, []string{"live now"}, titles(buckets.Live))
	assert.Equal(t, []string{"next week"}, titles(buckets.Upcoming))
	assert.Equal(t, []string{"last week"}, titles(buckets.Past))
	// "next year" is beyond the horizon and shows up nowhere.
}

func TestGetEventsSkipsCorruptStoredDate(t *testing.T) {
	r := setupTestApp(t)
	_, token := createVerifiedUser(t, "owner@example.com", "owner")

	now := time.Now()
	good := createEvent(t, r, token, gin.H{"title": "good", "start_date": DateOnlyFromTime(now.AddDate(0, 0, 7)).String()})
	bad := createEvent(t, r, token, gin.H{"title": "bad", "start_date": DateOnlyFromTime(now.AddDate(0, 0, 8)).String()})
	require.NoError(t, DB.Exec("UPDATE events SET start_date = ? WHERE id = ?", "not a date", bad.ID).Error)

	// The listing still works; the corrupt row lands in no bucket.
	w := doJSON(t, r, http.MethodGet, "/api/events", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var buckets Buckets
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buckets))
	all := append(append(titles(buckets.Live), titles(buckets.Upcoming)...), titles(buckets.Past)...)
	assert.Equal(t, []string{"good"}, all)

	// Fetching the row directly still works, it just carries no start date.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/events/%d", bad.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ev Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	assert.True(t, ev.StartDate.IsZero())

	// Event payloads never carry an owner object unless one was loaded.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/events/%d", good.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "owner")
}

func TestSearchEvents(t *testing.T) {
	r := setupTestApp(t)
	_, token := createVerifiedUser(t, "owner@example.com", "owner")
	_, otherToken := createVerifiedUser(t, "other@example.com", "other")

	wedding := createEvent(t, r, token, gin.H{"title": "Beach Wedding", "start_date": "Jun 10, 2031", "location": "Boracay"})
	createEvent(t, r, token, gin.H{"title": "Quarterly Review", "start_date": "Feb 1, 2031"})
	createEvent(t, r, otherToken, gin.H{"title": "Wedding Crash", "start_date": "Jun 11, 2031"})

	// Keyword also reaches into board task text.
	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/events/%d/columns", wedding.ID), token, gin.H{"revision": 0, "title": "Catering"})
	require.Equal(t, http.StatusOK, w.Code)
	var colResp struct {
		Columns ColumnList `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &colResp))
	w = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/api/events/%d/columns/%s/tasks", wedding.ID, colResp.Columns[0].ID),
		token, gin.H{"revision": 1, "text": "hire mariachi band"})
	require.Equal(t, http.StatusOK, w.Code)

	search := func(query string) []Event {
		t.Helper()
		w := doJSON(t, r, http.MethodGet, "/api/events/search?"+query, token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var results []Event
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
		return results
	}

	// Only the caller's visible events are searched.
	assert.Equal(t, []string{"Beach Wedding"}, titles(search("keyword=wedding")))
	assert.Equal(t, []string{"Beach Wedding"}, titles(search("keyword=boracay")))
	assert.Equal(t, []string{"Beach Wedding"}, titles(search("keyword=mariachi")))
	assert.Equal(t, []string{"Quarterly Review"}, titles(search("from=Jan+1,+2031&to=Mar+1,+2031")))
	assert.Empty(t, search("keyword=nonexistent"))

	w = doJSON(t, r, http.MethodGet, "/api/events/search?from=whenever", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventAccessControl(t *testing.T) {
	r := setupTestApp(t)
	_, ownerToken := createVerifiedUser(t, "owner@example.com", "owner")
	collab, collabToken := createVerifiedUser(t, "friend@example.com", "friend")
	_, strangerToken := createVerifiedUser(t, "stranger@example.com", "stranger")

	ev := createEvent(t, r, ownerToken, gin.H{"title": "Wedding", "start_date": "Jan 1, 2031"})
	path := fmt.Sprintf("/api/events/%d", ev.ID)

	// Invisible to non-participants.
	w := doJSON(t, r, http.MethodGet, path, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Invite the collaborator; event becomes visible and editable to them.
	w = doJSON(t, r, http.MethodPost, path+"/collaborators", ownerToken, gin.H{"email": collab.Email})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, path, collabToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/events", collabToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var buckets Buckets
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buckets))
	assert.Equal(t, []string{"Wedding"}, titles(buckets.Upcoming))

	w = doJSON(t, r, http.MethodPut, path, collabToken, gin.H{"title": "Beach Wedding", "start_date": "Jan 1, 2031"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Deletion stays owner-only.
	w = doJSON(t, r, http.MethodDelete, path, collabToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodDelete, path, ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, DB.Model(&EventCollaborator{}).Where("event_id = ?", ev.ID).Count(&count).Error)
	assert.Zero(t, count, "collaborator rows must be removed with the event")
}

func TestInviteCollaborator(t *testing.T) {
	r := setupTestApp(t)
	owner, ownerToken := createVerifiedUser(t, "owner@example.com", "owner")
	_, otherToken := createVerifiedUser(t, "other@example.com", "other")

	ev := createEvent(t, r, ownerToken, gin.H{"title": "Gala", "start_date": "Feb 1, 2031"})
	path := fmt.Sprintf("/api/events/%d/collaborators", ev.ID)

	// Invites normalize the address, and repeating one is a no-op.
	w := doJSON(t, r, http.MethodPost, path, ownerToken, gin.H{"email": " Guest@Example.com "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = doJSON(t, r, http.MethodPost, path, ownerToken, gin.H{"email": "guest@example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, DB.Model(&EventCollaborator{}).Where("event_id = ?", ev.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var collab EventCollaborator
	require.NoError(t, DB.Where("event_id = ?", ev.ID).First(&collab).Error)
	assert.Equal(t, "guest@example.com", collab.Email)

	w = doJSON(t, r, http.MethodPost, path, ownerToken, gin.H{"email": "nonsense"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, path, ownerToken, gin.H{"email": owner.Email})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, path, otherToken, gin.H{"email": "x@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLeaveEvent(t *testing.T) {
	r := setupTestApp(t)
	_, ownerToken := createVerifiedUser(t, "owner@example.com", "owner")
	collab, collabToken := createVerifiedUser(t, "friend@example.com", "friend")

	ev := createEvent(t, r, ownerToken, gin.H{"title": "Retreat", "start_date": "Mar 1, 2031"})
	base := fmt.Sprintf("/api/events/%d", ev.ID)

	w := doJSON(t, r, http.MethodPost, base+"/collaborators", ownerToken, gin.H{"email": collab.Email})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, base+"/collaborators/me", ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "owner cannot leave")

	w = doJSON(t, r, http.MethodDelete, base+"/collaborators/me", collabToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Gone from the collaborator's listing afterwards.
	w = doJSON(t, r, http.MethodGet, base, collabToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBoardEndpoints(t *testing.T) {
	r := setupTestApp(t)
	_, ownerToken := createVerifiedUser(t, "owner@example.com", "owner")
	collab, collabToken := createVerifiedUser(t, "friend@example.com", "friend")

	ev := createEvent(t, r, ownerToken, gin.H{"title": "Launch", "start_date": "Apr 1, 2031"})
	base := fmt.Sprintf("/api/events/%d", ev.ID)

	w := doJSON(t, r, http.MethodPost, base+"/collaborators", ownerToken, gin.H{"email": collab.Email})
	require.Equal(t, http.StatusOK, w.Code)

	type boardResp struct {
		Columns       ColumnList `json:"columns"`
		BoardRevision uint       `json:"board_revision"`
	}
	board := func(w *httptest.ResponseRecorder) boardResp {
		t.Helper()
		var resp boardResp
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	// Owner adds a column at revision 0.
	w = doJSON(t, r, http.MethodPost, base+"/columns", ownerToken, gin.H{"revision": 0, "title": "Checklist"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := board(w)
	require.Len(t, resp.Columns, 1)
	assert.Equal(t, uint(1), resp.BoardRevision)
	colID := resp.Columns[0].ID

	// Collaborator writes with the current revision.
	w = doJSON(t, r, http.MethodPost, base+"/columns/"+colID+"/tasks", collabToken, gin.H{"revision": 1, "text": "order cake"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = board(w)
	require.Len(t, resp.Columns[0].Tasks, 1)
	taskID := resp.Columns[0].Tasks[0].ID

	// A stale revision is rejected and the stored board is untouched.
	w = doJSON(t, r, http.MethodPatch, base+"/columns/"+colID, ownerToken, gin.H{"revision": 1, "title": "Renamed"})
	assert.Equal(t, http.StatusConflict, w.Code)

	var stored Event
	require.NoError(t, DB.First(&stored, ev.ID).Error)
	assert.Equal(t, "Checklist", stored.Columns[0].Title)
	assert.Equal(t, uint(2), stored.BoardRevision)

	// Toggle then edit: completed survives the text change.
	w = doJSON(t, r, http.MethodPost, base+"/columns/"+colID+"/tasks/"+taskID+"/toggle", ownerToken, gin.H{"revision": 2})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodPatch, base+"/columns/"+colID+"/tasks/"+taskID, ownerToken, gin.H{"revision": 3, "text": "order a bigger cake"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = board(w)
	assert.True(t, resp.Columns[0].Tasks[0].Completed)
	assert.Equal(t, "order a bigger cake", resp.Columns[0].Tasks[0].Text)

	// Unknown targets are 404s.
	w = doJSON(t, r, http.MethodPost, base+"/columns/missing/tasks", ownerToken, gin.H{"revision": 4, "text": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deleting the column takes its tasks with it in one write.
	w = doJSON(t, r, http.MethodDelete, base+"/columns/"+colID, ownerToken, gin.H{"revision": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = board(w)
	assert.Empty(t, resp.Columns)

	require.NoError(t, DB.First(&stored, ev.ID).Error)
	assert.Empty(t, stored.Columns)
	assert.Equal(t, uint(5), stored.BoardRevision)
}

func TestBoardRequiresParticipant(t *testing.T) {
	r := setupTestApp(t)
	_, ownerToken := createVerifiedUser(t, "owner@example.com", "owner")
	_, strangerToken := createVerifiedUser(t, "stranger@example.com", "stranger")

	ev := createEvent(t, r, ownerToken, gin.H{"title": "Private", "start_date": "May 1, 2031"})
	path := fmt.Sprintf("/api/events/%d/columns", ev.ID)

	w := doJSON(t, r, http.MethodPost, path, strangerToken, gin.H{"revision": 0, "title": "Nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, path, "", gin.H{"revision": 0, "title": "Nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
