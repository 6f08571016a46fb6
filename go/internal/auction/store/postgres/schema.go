package postgres

import _ "embed"

// Schema creates the tables, indexes and NOTIFY triggers. It is idempotent.
//
//go:embed schema.sql
var Schema string

// LISTEN/NOTIFY channels the triggers publish on.
const (
	EventsChannel   = "auction_events"
	ProfilesChannel = "profile_changes"
)
