package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// -----------------------------
// Board operations (pure)
// -----------------------------
//
// Each operation returns the updated list plus whether the addressed column
// or task existed. Missing targets leave the board untouched.

func freshID() string {
	return uuid.NewString()
}

func (c ColumnList) AddColumn(title string) ColumnList {
	return append(c, Column{ID: freshID(), Title: title, Tasks: []Task{}})
}

func (c ColumnList) RenameColumn(columnID, title string) (ColumnList, bool) {
	for i := range c {
		if c[i].ID == columnID {
			c[i].Title = title
			return c, true
		}
	}
	return c, false
}

func (c ColumnList) DeleteColumn(columnID string) (ColumnList, bool) {
	for i := range c {
		if c[i].ID == columnID {
			// Removes the column and every task in it in one write.
			return append(c[:i:i], c[i+1:]...), true
		}
	}
	return c, false
}

func (c ColumnList) AddTask(columnID, text string) (ColumnList, bool) {
	for i := range c {
		if c[i].ID == columnID {
			c[i].Tasks = append(c[i].Tasks, Task{ID: freshID(), Text: text, Completed: false})
			return c, true
		}
	}
	return c, false
}

func (c ColumnList) EditTask(columnID, taskID, text string) (ColumnList, bool) {
	for i := range c {
		if c[i].ID != columnID {
			continue
		}
		for j := range c[i].Tasks {
			if c[i].Tasks[j].ID == taskID {
				// Text edits never touch the completed flag.
				c[i].Tasks[j].Text = text
				return c, true
			}
		}
		return c, false
	}
	return c, false
}

func (c ColumnList) ToggleTask(columnID, taskID string) (ColumnList, bool) {
	for i := range c {
		if c[i].ID != columnID {
			continue
		}
		for j := range c[i].Tasks {
			if c[i].Tasks[j].ID == taskID {
				c[i].Tasks[j].Completed = !c[i].Tasks[j].Completed
				return c, true
			}
		}
		return c, false
	}
	return c, false
}

func (c ColumnList) DeleteTask(columnID, taskID string) (ColumnList, bool) {
	for i := range c {
		if c[i].ID != columnID {
			continue
		}
		for j := range c[i].Tasks {
			if c[i].Tasks[j].ID == taskID {
				c[i].Tasks = append(c[i].Tasks[:j:j], c[i].Tasks[j+1:]...)
				return c, true
			}
		}
		return c, false
	}
	return c, false
}

// -----------------------------
// Board HTTP handlers
// -----------------------------

var (
	errEventNotFound      = errors.New("event not found")
	errEventForbidden     = errors.New("not a participant of this event")
	errRevisionConflict   = errors.New("board was changed by someone else, reload and retry")
	errBoardTargetMissing = errors.New("column or task not found")
)

type AddColumnRequest struct {
	Revision uint   `json:"revision"`
	Title    string `json:"title" binding:"required"`
}

type RenameColumnRequest struct {
	Revision uint   `json:"revision"`
	Title    string `json:"title" binding:"required"`
}

type AddTaskRequest struct {
	Revision uint   `json:"revision"`
	Text     string `json:"text" binding:"required"`
}

type EditTaskRequest struct {
	Revision uint   `json:"revision"`
	Text     string `json:"text" binding:"required"`
}

type BoardRevisionRequest struct {
	Revision uint `json:"revision"`
}

func AddColumnHandler(c *gin.Context) {
	var body AddColumnRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	mutateBoard(c, body.Revision, func(cols ColumnList) (ColumnList, bool) {
		return cols.AddColumn(strings.TrimSpace(body.Title)), true
	})
}

func RenameColumnHandler(c *gin.Context) {
	var body RenameColumnRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	columnID := c.Param("columnId")
	mutateBoard(c, body.Revision, func(cols ColumnList) (ColumnList, bool) {
		return cols.RenameColumn(columnID, strings.TrimSpace(body.Title))
	})
}

func DeleteColumnHandler(c *gin.Context) {
	var body BoardRevisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	columnID := c.Param("columnId")
	mutateBoard(c, body.Revision, func(cols ColumnList) (ColumnList, bool) {
		return cols.DeleteColumn(columnID)
	})
}

func AddTaskHandler(c *gin.Context) {
	var body AddTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	columnID := c.Param("columnId")
	mutateBoard(c, body.Revision, func(cols ColumnList) (ColumnList, bool) {
		return cols.AddTask(columnID, strings.TrimSpace(body.Text))
	})
}

func EditTaskHandler(c *gin.Context) {
	var body EditTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	columnID, taskID := c.Param("columnId"), c.Param("taskId")
	mutateBoard(c, body.Revision, func(cols ColumnList) (ColumnList, bool) {
		return cols.EditTask(columnID, taskID, strings.TrimSpace(body.Text))
	})
}

func ToggleTaskHandler(c *gin.Context) {
	var body BoardRevisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	columnID, taskID := c.Param("columnId"), c.Param("taskId")
	mutateBoard(c, body.Revision, func(cols ColumnList) (ColumnList, bool) {
		return cols.ToggleTask(columnID, taskID)
	})
}

func DeleteTaskHandler(c *gin.Context) {
	var body BoardRevisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	columnID, taskID := c.Param("columnId"), c.Param("taskId")
	mutateBoard(c, body.Revision, func(cols ColumnList) (ColumnList, bool) {
		return cols.DeleteTask(columnID, taskID)
	})
}

// mutateBoard runs one board operation inside a transaction. The caller's
// revision must match the stored board_revision; a successful mutation bumps
// it, so a collaborator writing against a stale board gets a 409 instead of
// silently overwriting the other side's edits.
func mutateBoard(c *gin.Context, revision uint, apply func(ColumnList) (ColumnList, bool)) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid event id")
		return
	}
	eventID := uint(eventID64)

	var updated Event
	txErr := DB.Transaction(func(tx *gorm.DB) error {
		var ev Event
		if err := tx.First(&ev, eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errEventNotFound
			}
			return err
		}

		allowed, err := userCanAccessEvent(tx, &ev, userID)
		if err != nil {
			return err
		}
		if !allowed {
			return errEventForbidden
		}

		if ev.BoardRevision != revision {
			return errRevisionConflict
		}

		cols, found := apply(ev.Columns)
		if !found {
			return errBoardTargetMissing
		}

		ev.Columns = cols
		ev.BoardRevision++
		if err := tx.Model(&ev).Updates(map[string]any{
			"columns":        ev.Columns,
			"board_revision": ev.BoardRevision,
		}).Error; err != nil {
			return err
		}

		updated = ev
		return nil
	})

	switch {
	case txErr == nil:
		c.JSON(http.StatusOK, gin.H{
			"columns":        updated.Columns,
			"board_revision": updated.BoardRevision,
		})
	case errors.Is(txErr, errEventNotFound):
		jsonError(c, http.StatusNotFound, txErr.Error())
	case errors.Is(txErr, errEventForbidden):
		jsonError(c, http.StatusForbidden, txErr.Error())
	case errors.Is(txErr, errRevisionConflict):
		jsonError(c, http.StatusConflict, txErr.Error())
	case errors.Is(txErr, errBoardTargetMissing):
		jsonError(c, http.StatusNotFound, txErr.Error())
	default:
		log.Error().Err(txErr).Uint("event_id", eventID).Msg("board mutation failed")
		jsonError(c, http.StatusInternalServerError, "db error: "+txErr.Error())
	}
}
