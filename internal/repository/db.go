package repository

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...any) error
}

// uuidArray adapts a UUID slice for use with = ANY($n) placeholders.
func uuidArray(ids []uuid.UUID) any {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = id.String()
	}
	return pq.Array(ss)
}
