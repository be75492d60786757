// Package dispatch drives one resumable send run.
//
// A run fetches the recipient list once, reads the resume cursor from the
// progress log, skips everything up to and including the last recorded
// address, and sends the rest in fixed-size batches with a pause after every
// attempt and a longer pause after every batch. Successful sends are appended
// to the progress log before the next address is touched.
//
// Per-address send failures are logged and counted; they never stop the run.
// Failing to fetch recipients, to read the cursor, or to record a success
// aborts it with a KindFatal error.
package dispatch
