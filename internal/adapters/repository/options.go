package repository

import "database/sql"

const defaultTable = "records"

// Option applies a configuration option to a SQLStore.
type Option func(*sqlOptions)

type sqlOptions struct {
	table string
	open  func(driverName, dataSourceName string) (*sql.DB, error)
}

func defaultSQLOptions() sqlOptions {
	return sqlOptions{table: defaultTable, open: sql.Open}
}

// WithTable sets the table holding the records.
func WithTable(name string) Option {
	return func(o *sqlOptions) {
		if name != "" {
			o.table = name
		}
	}
}

// WithSQLOpen swaps the function used to open the database handle.
func WithSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) Option {
	return func(o *sqlOptions) {
		if fn != nil {
			o.open = fn
		}
	}
}
