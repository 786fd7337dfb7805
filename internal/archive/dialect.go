package archive

// Dialect abstracts the database-specific corners of the archive:
// parameter placeholders, DDL types, and driver naming.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// Placeholder returns the parameter placeholder for the given
	// 1-based index.
	Placeholder(index int) string

	// TablesSQL returns the DDL for the archive tables.
	TablesSQL() string
}

// NewDialect returns the dialect for a driver name.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

// placeholders builds "$1, $2, ..." / "?, ?, ..." for n parameters
// starting at 1-based index start.
func placeholders(d Dialect, start, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += d.Placeholder(start + i)
	}
	return out
}
