// Package history persists terminal mutation outcomes in SQLite so that
// completed work can be queried after the tracker that produced it is gone.
//
// Store owns the database connection and schema migrations. Recorder adapts
// the store to the tracker's Subscriber interface, moving writes off the
// polling goroutine:
//
//	store, _ := history.NewStore(history.Config{Path: "opwatch.db"})
//	_ = store.Init(ctx)
//	_ = store.Migrate(ctx)
//
//	recorder := history.NewRecorder(store, logger)
//	defer recorder.Close()
//	_ = tr.Subscribe(recorder)
//
// Only terminal transitions are recorded. In-flight state changes pass
// through without touching the database.
package history
