// Package core resolves which external credential an outbound integration call
// runs under and keeps delegated and application tokens valid.
//
// Three tiers are considered in strict order: the caller's interactive session,
// a delegated token stored for the target user, and the tenant's application
// registration. Provider clients, calendar normalization and messaging sends
// live in sibling packages and depend on this one, never the other way round.
package core
