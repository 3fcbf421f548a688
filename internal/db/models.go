package db

import (
	"encoding/json"
	"time"
)

// DateTime is a nullable UTC timestamp rendered as "YYYY-MM-DD HH:MM:SS".
type DateTime struct {
	time.Time
	Valid bool
}

const DateTimeLayout = "2006-01-02 15:04:05"

func At(t time.Time) DateTime { return DateTime{Time: t.UTC().Truncate(time.Second), Valid: true} }

func (d DateTime) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.UTC().Format(DateTimeLayout)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

type User struct {
	ID        int64    `json:"id" db:"id"`
	Username  string   `json:"username" db:"username"`
	Password  string   `json:"-" db:"password"` // bcrypt hash; legacy rows may hold plaintext
	Prefix    string   `json:"prefix" db:"prefix"`
	LastLogin DateTime `json:"last_login" db:"last_login"`
}

// Key is a license key owned by a prefix and bound to at most one device.
type Key struct {
	IDKey     int64    `json:"id_key" db:"id_key"`
	Key       string   `json:"key" db:"key"`
	Length    int      `json:"length" db:"length"`
	Prefix    string   `json:"prefix" db:"prefix"`
	IDDevice  *string  `json:"id_device" db:"id_device"`
	TimeStart DateTime `json:"time_start" db:"time_start"`
	TimeEnd   DateTime `json:"time_end" db:"time_end"`
}

// Device returns the bound device id or "" when none is bound.
func (k *Key) Device() string {
	if k.IDDevice == nil {
		return ""
	}
	return *k.IDDevice
}
