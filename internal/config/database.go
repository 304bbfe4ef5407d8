package config

// DatabaseConfig holds ledger storage configuration
type DatabaseConfig struct {
	Driver       string
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// GetConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return c.URL
}

// UsesPostgres reports whether the ledger is backed by PostgreSQL
func (c *DatabaseConfig) UsesPostgres() bool {
	return c.Driver == DriverPostgres
}
