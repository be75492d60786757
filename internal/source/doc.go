// Package source fetches the ordered recipient list for a run.
//
// Drivers:
//   - supabase: PostgREST RPC over HTTP (default)
//   - postgres: direct query through lib/pq
//   - csv: first column of a local file
//
// Every failure wraps ErrSourceUnavailable so callers can treat the run as
// aborted without inspecting driver errors.
package source
