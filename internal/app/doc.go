// Package app implements the acquisition pipeline: frame decoding, voltage
// conversion, the bounded sample queue, the acquisition loop, the batched
// persistence writer, and the lifecycle state machine that coordinates them.
//
// Data flows serial line → Decode → Calibration.Convert → SampleQueue →
// Writer → LogStore. Control flows through Lifecycle: the acquisition loop
// reads the state to decide whether to idle, read, or perform its final
// read, and reports back through the Coordinator interface.
package app
