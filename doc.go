/*
Package weave defines the interfaces used throughout the escrow ledger, such
as storage, transactions, handlers and events.

It also contains helpers to work with addresses, conditions, time and the
context that carries block information and the logger. Look into this
package to get a brief overview of the design decisions made around
interfaces and extension building blocks.
*/
package weave
