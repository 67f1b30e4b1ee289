// Package ports defines the interfaces that connect the acquisition core
// (internal/app) to infrastructure adapters (internal/adapters).
//
// # Port Interfaces
//
//   - [Connection]: a line-oriented serial byte source
//   - [Dialer]: opens a Connection for a device path
//   - [Discoverer]: finds the device path of the microcontroller
//   - [LogStore]: the append-only durable voltage log
//   - [SessionRepository]: persists per-run bookkeeping
//   - [Observer]: receives display events
//
// The core depends only on these interfaces, so it is tested with fakes
// and never touches a real port or disk in unit tests.
package ports
