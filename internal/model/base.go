package model

import "time"

// DateRange bounds calendar and analytics queries.
type DateRange struct {
	From time.Time `json:"from" form:"from"`
	To   time.Time `json:"to" form:"to"`
}
