// Package mysql provides the shared MySQL connection pool and the embedded
// schema migration runner used by the MySQL-backed run recorder.
package mysql
