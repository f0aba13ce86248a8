package config

import "time"

// Session is the audit view of one connection. It never carries drawing
// content.
type Session struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	UserAgent  string    `json:"userAgent"`
	OpenedAt   time.Time `json:"openedAt"`
	ClosedAt   time.Time `json:"closedAt,omitzero"`
	EventsIn   int64     `json:"eventsIn"`
	EventsOut  int64     `json:"eventsOut"`
	Dropped    int64     `json:"dropped"`
}
