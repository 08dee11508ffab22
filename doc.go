// Package acme holds the domain types shared by the renewal engine: the
// certificate Target, the persisted ScheduledRenewal record, the ACME Order
// and Authorization handles, and the RenewResult returned by one renewal
// attempt. Nothing in this package performs I/O; the engine, acmeclient,
// registry and plugin packages build on these types.
package acme
