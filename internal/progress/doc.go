// Package progress defines the event stream a build emits to its caller.
//
// An [Event] is a tagged union of percentage updates, log lines, and the two
// terminal outcomes. Producers write events to a [Sink]; a [Reporter] binds
// a sink to one pipeline stage so that every event carries the name of the
// stage that produced it.
//
// Temporal ordering guarantees:
//
//   - Success: (Percent | Log)* then Success
//   - Failure: (Percent | Log)* then Failure
//
// Exactly one terminal event is emitted per build, and it is always last.
// A [Channel] sink is closed by its producer after the terminal event.
//
// Example usage:
//
//	events := progress.NewChannel(64)
//	go func() {
//	    defer events.Close()
//	    builder.Run(ctx, cfg, events)
//	}()
//
//	for e := range events.Events() {
//	    fmt.Println(e)
//	}
package progress
