// Package monitor defines the types and interfaces shared by the scheduler,
// the probe executor, the retention sweeper, and the registry backends.
//
// A Site is a monitored target; each completed probe produces one CheckLog
// row and, when the probe got as far as classifying the page, overwrites the
// Site's latest-status fields in the same transaction.
package monitor
