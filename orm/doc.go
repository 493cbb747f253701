/*
Package orm provides an easy to use db wrapper

Break state space into prefixed sections called Buckets.
* Each bucket contains only one type of model.
* It has a primary key and may possess secondary indexes (1:1 or 1:N).
* Easy queries for one and iteration.

Models are protobuf messages that know how to validate themselves. Every
write goes through Validate, so invalid state can never be persisted.
*/
package orm
