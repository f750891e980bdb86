// Package database opens the PostgreSQL connection pool used by the
// inbound message journal.
package database
