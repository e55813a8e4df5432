package main

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// User represents a registered account. Login is blocked until the email
// address has been verified.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	FirstName    string    `json:"first_name" gorm:"not null"`
	MiddleName   string    `json:"middle_name"`
	LastName     string    `json:"last_name" gorm:"not null"`
	Username     string    `json:"username" gorm:"uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Verified     bool      `json:"verified"`
	VerifyToken  string    `json:"-" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is the core planning record. The task board (Columns) is embedded
// as a single JSON document so the event row stays the sole unit of
// consistency: deleting the event destroys the board with it.
type Event struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	OwnerID       uint       `json:"owner_id" gorm:"index;not null"`
	Title         string     `json:"title" gorm:"not null"`
	EventType     string     `json:"event_type"`
	Location      string     `json:"location"`
	Description   string     `json:"description"`
	StartDate     DateOnly   `json:"start_date" gorm:"type:varchar(32);not null"`
	EndDate       *DateOnly  `json:"end_date" gorm:"type:varchar(32)"`
	IsMultiDay    bool       `json:"is_multi_day"`
	Columns       ColumnList `json:"columns" gorm:"type:text"`
	BoardRevision uint       `json:"board_revision"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Owner         *User               `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Collaborators []EventCollaborator `gorm:"foreignKey:EventID" json:"collaborators,omitempty"`
}

// EffectiveEnd is the end boundary used for classification: the end date for
// multi-day events that have one, otherwise the start date.
func (e *Event) EffectiveEnd() DateOnly {
	if e.IsMultiDay && e.EndDate != nil && !e.EndDate.IsZero() {
		return *e.EndDate
	}
	return e.StartDate
}

// EventCollaborator grants a non-owner read/write access to an event and its
// board. Emails are stored normalized (trimmed, lowercased).
type EventCollaborator struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	EventID   uint      `json:"event_id" gorm:"not null;uniqueIndex:idx_event_collab_email"`
	Email     string    `json:"email" gorm:"not null;uniqueIndex:idx_event_collab_email"`
	CreatedAt time.Time `json:"created_at"`
}

// Column is one ordered task list on an event's board.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// ColumnList stores the whole board as one JSON value on the event row.
type ColumnList []Column

func (c ColumnList) Value() (driver.Value, error) {
	if c == nil {
		c = ColumnList{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal board: %w", err)
	}
	return string(data), nil
}

func (c *ColumnList) Scan(src any) error {
	var data []byte
	switch val := src.(type) {
	case nil:
		*c = ColumnList{}
		return nil
	case string:
		data = []byte(val)
	case []byte:
		data = val
	default:
		return fmt.Errorf("cannot scan %T into ColumnList", src)
	}
	if len(data) == 0 {
		*c = ColumnList{}
		return nil
	}
	return json.Unmarshal(data, c)
}
