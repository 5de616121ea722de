// Package broadcast composes invocation outcomes into protocol messages and
// delivers them to stream subscribers.
//
// Every connection subscribes to exactly one stream, named by StreamName
// from its identifiers and an optional channel. Hub delivers messages to the
// subscribers of one process; RedisBroadcaster publishes through Redis so
// every node's Hub sees every message.
package broadcast
