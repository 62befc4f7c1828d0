// Package ws serves the shared board over WebSocket.
//
// The package implements:
//   - Hub: the single authority over the drawing store and session registry;
//     applies join, draw, clear and leave and fans the result out
//   - Client: one connection with a bounded, non-blocking send queue
//   - Handler: upgrade, read/write pumps, inbound classification and drops
//   - Service: wires hub lifecycle to the session audit log, the event
//     journal and metrics
//
// A client whose queue overflows is reaped: its session is destroyed and the
// remaining sessions receive a leave presence update.
package ws
