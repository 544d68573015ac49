// Package logship provides an embeddable sink that ships structured log
// events to a Seq-compatible ingestion server.
//
// Events are posted as compact JSON (CLEF) to the server's raw events
// endpoint. Producers never wait for the network: a batched sink keeps a
// bounded in-memory queue, a durable sink appends to files on disk and
// ships them from a persisted bookmark. An audit sink is the exception and
// posts every event synchronously.
//
// # Basic Usage
//
//	cfg := logship.DefaultConfig()
//	cfg.ServerURL = "http://localhost:5341"
//	cfg.APIKey = "your-api-key"
//
//	sink, err := logship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := sink.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sink.Close()
//
//	_ = sink.Write(ctx, logship.Record{
//	    Level:           logship.LevelWarning,
//	    MessageTemplate: "Disk {Volume} is {Percent}% full",
//	    Properties:      map[string]any{"Volume": "/data", "Percent": 93},
//	})
//
// # Delivery Modes
//
// The mode is chosen once from the configuration:
//
//   - Batched (default): events that find the queue full, or batches the
//     server could not take, are dropped and counted in [Stats].
//   - Durable (BufferBaseFilename set): events are appended to daily
//     segment files and shipped at least once. A crash between the server
//     accepting a batch and the bookmark being written re-ships that batch
//     on the next run. Only one sink may own a buffer at a time.
//   - Audit (Audit set): [Sink.Emit] returns a [*AuditError] whenever the
//     server does not accept the event.
//
// # Minimum Level
//
// The server may return a minimum level with each response. Without a
// local floor the sink adopts it, and mirrors it into
// Config.ServerLevelSwitch when one is supplied. Setting Config.MinimumLevel
// pins the floor locally and server directives are ignored. Supplying both
// switches fails with [ErrLevelConflict].
//
// # Lifecycle States
//
// A sink moves through these states:
//
//   - StateStopped: initial state
//   - StateStarting: Start() called, worker launching
//   - StateRunning: shipping in the background
//   - StateStopping: Stop() called, final flush in progress
//   - StateCrashed: the worker failed or shutdown timed out
//
// After a shutdown timeout a durable sink keeps its buffer locked until the
// abandoned worker returns, so no second sink can ship the same range.
package logship
