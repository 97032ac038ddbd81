// Package pgstore implements marketapi.Store on PostgreSQL.
//
// Trades run at READ COMMITTED with row locks: the single market row is
// locked FOR UPDATE first, then the account row. lock_timeout is set per
// transaction so a stuck lock surfaces as a retryable busy error instead of
// a hang.
package pgstore
