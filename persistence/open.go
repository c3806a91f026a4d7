package persistence

import "fmt"

// Open returns the store named by kind: "json" and "sqlite" use file,
// "postgres" uses dsn.
func Open(kind, dsn, file string) (Storage, error) {
	switch kind {
	case "", "json":
		return NewJSONStore(file)
	case "sqlite":
		return NewSQLiteStore(file)
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
