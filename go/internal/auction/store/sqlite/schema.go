package sqlite

// schema mirrors the Postgres tables. Times are stored as unix nanoseconds and
// amounts as decimal text so that neither loses precision.
const schema = `
CREATE TABLE IF NOT EXISTS auction_rooms (
    name           TEXT PRIMARY KEY,
    description    TEXT NOT NULL DEFAULT '',
    starting_price TEXT NOT NULL,
    min_increment  TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paused', 'ended')),
    ends_at        INTEGER,
    stream         TEXT,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bids (
    id           TEXT PRIMARY KEY,
    room         TEXT NOT NULL REFERENCES auction_rooms (name),
    bidder       TEXT NOT NULL CHECK (bidder <> ''),
    bidder_email TEXT,
    amount       TEXT NOT NULL,
    inserted_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS bids_room_inserted_at_idx ON bids (room, inserted_at);

CREATE TABLE IF NOT EXISTS profiles (
    id           TEXT PRIMARY KEY,
    email        TEXT NOT NULL DEFAULT '',
    role         TEXT NOT NULL DEFAULT 'participant' CHECK (role IN ('admin', 'participant')),
    first_name   TEXT,
    last_name    TEXT,
    address      TEXT,
    postal_code  TEXT,
    city         TEXT,
    country      TEXT,
    phone_number TEXT
);
`
