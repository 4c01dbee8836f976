package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Source identifies a polled external data source.
type Source string

const (
	SourceBlockchain Source = "blockchain"
	SourcePrice      Source = "price"
)

// Sample is one immutable measurement taken at poll time. Samples are
// append-only; they are never updated or deleted.
type Sample struct {
	ID        uuid.UUID
	Source    Source
	CreatedAt time.Time
	Payload   json.RawMessage
}

// Order controls the sort direction of sample listings.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)
