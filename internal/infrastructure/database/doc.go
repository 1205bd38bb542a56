// Package database provides SQLite connectivity for the player's local
// history store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Forward-only schema migrations read from an fs.FS
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and each .up.sql should ship with a .down.sql.
package database
