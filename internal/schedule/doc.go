// Package schedule keeps mailblast resident and starts a run on each
// trigger of a cron expression or fixed interval.
//
// Runs never overlap: a trigger that fires while a run is still sleeping
// between batches is skipped and logged.
package schedule
