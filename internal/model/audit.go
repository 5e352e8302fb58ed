package model

import "time"

// now is swapped in tests that need deterministic audit timestamps.
var now = func() time.Time { return time.Now().UTC() }

// Audit holds creation and last-mutation timestamps.
type Audit struct {
	CreatedAt time.Time  `gorm:"column:created_date;not null" json:"created_date"`
	UpdatedAt *time.Time `gorm:"column:updated_date" json:"updated_date"`
}

// NewAudit stamps the creation time.
func NewAudit() Audit {
	return Audit{CreatedAt: now()}
}

// Touch records a mutation.
func (a *Audit) Touch() {
	t := now()
	a.UpdatedAt = &t
}

func (a Audit) clone() Audit {
	c := Audit{CreatedAt: a.CreatedAt}
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}
