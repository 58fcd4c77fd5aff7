// Package domain holds the core entities of the pipeline mailer: queue
// items and their lifecycle state machine, email templates, execution log
// records, and members. It has no dependencies on storage or transport.
package domain
