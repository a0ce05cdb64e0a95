// Package sqlstore implements store.Store over database/sql. The sqlite and
// postgres drivers share it and differ only in their Dialect and migrations.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name string

	// NumberedPlaceholders rewrites ? to $1, $2, ...
	NumberedPlaceholders bool

	// RowLocks appends FOR UPDATE to locking reads. SQLite has a single
	// writer and no row locks.
	RowLocks bool

	// AdvisoryLockSQL takes a transaction-scoped lock on a text key. Empty
	// means the database serialises writers on its own.
	AdvisoryLockSQL string

	// IsUniqueViolation recognises the driver's unique constraint error.
	IsUniqueViolation func(error) bool
}

func (d Dialect) rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) forUpdate(query string) string {
	if d.RowLocks {
		return query + " FOR UPDATE"
	}
	return query
}
