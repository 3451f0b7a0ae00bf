// Package store persists schedule extractions under the overwrite-by-date
// policy: a calendar date holds at most one extraction, and a new submission
// for that date replaces the previous extraction together with all of its
// classes.
//
// Two backends are provided. The SQLite backend keeps full history indexed
// by date and performs each replacement inside a single transaction. The
// memory backend keeps only the most recent extractions, bounded by a
// retention cap.
package store
