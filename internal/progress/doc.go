// Package progress is the durable send log behind resumable runs.
//
// Every successfully sent address is appended as one "<seq>. <address>" line to
// the newest segment file in the progress directory. Segments rotate every
// SegmentSize records; the sequence number keeps counting across segments and
// across restarts. On startup the last record of the newest segment is the
// resume cursor.
//
// Which segments exist, and in what order, is answered by an Index:
//   - "dir": in-memory manifest rebuilt from the directory listing (default)
//   - "sqlite": explicit manifest table in a SQLite file
package progress
