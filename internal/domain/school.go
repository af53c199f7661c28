package domain

import (
	"strconv"
	"time"
)

// Contact is a reachable party for a notification.
type Contact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Channel string `json:"channel,omitempty"` // whatsapp, sms, push, email
}

// IsZero reports whether the contact has no address to deliver to.
func (c Contact) IsZero() bool {
	return c.Phone == "" && c.Email == ""
}

// Student is a santri enrolled in a halaqah.
type Student struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"schoolId"`
	Name       string    `json:"name" validate:"required"`
	GroupID    string    `json:"groupId"`
	Active     bool      `json:"active"`
	Guardian   Contact   `json:"guardian"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// Group is a halaqah: students sharing one musyrif.
type Group struct {
	ID       string  `json:"id"`
	SchoolID string  `json:"schoolId"`
	Name     string  `json:"name" validate:"required"`
	Capacity int     `json:"capacity" validate:"gte=0"`
	Musyrif  Contact `json:"musyrif"`
}

// Unit is a scripture unit (surah or juz) with its verse count.
type Unit struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	TotalSubUnits int    `json:"totalSubUnits" validate:"gt=0"`
}

// Window is the half-open period [From, To) a derived value was computed over.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Days int       `json:"days"`
}

// TrailingWindow returns the window of the given days ending at now.
func TrailingWindow(now time.Time, days int) Window {
	if days <= 0 {
		days = 30
	}
	return Window{
		From: now.AddDate(0, 0, -days),
		To:   now,
		Days: days,
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Label renders the window the way insight text references it.
func (w Window) Label() string {
	switch w.Days {
	case 1:
		return "today"
	case 0:
		return "the selected period"
	}
	return "the last " + strconv.Itoa(w.Days) + " days"
}

// RecordFilter narrows record queries. Zero values mean "no constraint".
type RecordFilter struct {
	StudentID string
	GroupID   string
	From      time.Time
	To        time.Time
	Limit     int
}
