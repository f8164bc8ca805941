// Package migration applies versioned SQL schema migrations to SQLite.
//
// Migration files live in an fs.FS (usually an embed.FS compiled into the
// binary) and follow the naming convention {version}_{description}.sql, for
// example "001_initial_schema.sql". Applied versions are tracked in the
// schema_migrations table; each migration runs in its own transaction.
//
//	manager := migration.NewManager(migration.NewFileScanner(files), migration.NewSQLiteExecutor(db), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
