// Package storage manages the PostgreSQL connection pool the authorization
// store runs on.
package storage
