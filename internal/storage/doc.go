// Package storage keeps an audit trail of broadcast runs.
//
// One RunRecord is appended per run, whatever its outcome. Nothing in here
// is read back to resume a run; ListRuns exists for operators.
package storage
