package session

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// OpenSQLStore opens a database for dialect, creates the session table and
// returns a store on it. The returned close function closes the store and
// the database.
func OpenSQLStore(ctx context.Context, dialect SQLDialect, dsn string, opts ...SQLStoreOption) (*SQLStore, func() error, error) {
	db, err := sql.Open(dialect.String(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("session: open %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("session: ping %s: %w", dialect, err)
	}

	store := NewSQLStore(db, append([]SQLStoreOption{WithSQLDialect(dialect)}, opts...)...)
	if err := store.CreateTable(ctx); err != nil {
		store.Close()
		db.Close()
		return nil, nil, fmt.Errorf("session: create table: %w", err)
	}
	return store, func() error {
		store.Close()
		return db.Close()
	}, nil
}
