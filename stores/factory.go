package stores

import (
	"fmt"
)

// NewStore creates a new gateway store based on the configuration
func NewStore(config *StoreConfig) (GatewayStore, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStore(config)
	case "postgres":
		return NewPostgresStore(config)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// NewSQLiteStoreDefault creates a SQLite store with default settings
func NewSQLiteStoreDefault() (GatewayStore, error) {
	return NewSQLiteStoreSimple("toolgate.sqlite")
}

// NewPostgresStoreDefault creates a PostgreSQL store from connection details
func NewPostgresStoreDefault(host, user, password, dbname string, port int) (GatewayStore, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return NewPostgresStoreSimple(dsn)
}
