// Package domain contains the core entities and value objects of the
// acquisition pipeline.
//
// This package has no dependencies on infrastructure concerns (serial ports,
// the file system, logging) and contains only plain data and error types.
//
// # Entities
//
//   - [Sample]: one decoded ADC value with the instant it was read
//   - [VoltageReading]: a calibrated voltage ready to be persisted
//   - [Event]: a human-readable notice for the display observer
//   - [Session]: bookkeeping for one Start..Stop acquisition run
//
// Samples and readings are values. Ownership of a reading moves from the
// acquisition loop to the queue and then to the writer; nothing shares it.
package domain
