// Package pipeline runs named analysis stages over a dataset in order.
//
// The only contract to implement is Stage (a name plus a Run func).
// Stages mutate the dataset in place; cancellation is checked between stages
// and every stage is timed.
package pipeline
