// Package session provides the per-connection session state handlers read
// and write during an invocation, and the stores that persist it.
//
// # Session Storage
//
// The Store interface defines the contract for session persistence:
//
//	store := session.NewRedisStore(redisClient)
//	// or
//	store := session.NewSQLStore(db, session.WithSQLDialect(session.DialectSQLite))
//	// or
//	store := session.NewS3Store(s3Client, "my-bucket")
//	// or (default)
//	store := session.NewMemoryStore()
//
// # Sessions
//
// A Session is opened once per connection and committed once per
// invocation. Commit writes the values only when they changed and otherwise
// extends the expiry:
//
//	sess, err := session.Open(ctx, store, id, 24*time.Hour)
//	sess.Set("count", 3)
//	err = sess.Commit(ctx)
//
// Values are stored as JSON. After a reload numbers come back as float64;
// use Int to read counters regardless of origin.
package session
