// ABOUTME: Audio output package for synchronized playback
// ABOUTME: Provides the drain engine and the malgo and oto device backends
// Package output moves scheduled audio to a sound device.
//
// The Engine polls a Source for chunks whose play time has arrived,
// converts them to float32 and pushes them into a lock-free ring. The
// device callback drains the ring and plays silence when it runs dry.
//
// Example:
//
//	engine := output.NewEngine(output.NewMalgo(logger, nil), output.WithLogger(logger))
//	engine.Start(sched)
//	defer engine.Stop()
package output
