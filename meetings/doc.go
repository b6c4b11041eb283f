// Package meetings lists a mailbox's online meetings through a bearer-bound
// calendar client and normalizes provider events into core.OnlineMeetingRecord
// values.
package meetings
