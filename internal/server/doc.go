// Package server implements the realtime relay between extensions and
// dashboards.
//
// The implementation is organized into specialized files: the Registry owns
// every live connection and its role, the Router dispatches inbound
// envelopes to the schedule store or to a broadcast fan-out, the Hub ties
// each accepted WebSocket to a Client with its read and write pumps, and the
// handlers expose the WebSocket endpoints and the read-only REST surface.
package server
