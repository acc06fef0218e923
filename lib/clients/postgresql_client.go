package clients

import (
	"agentdms/lib/constants"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// NewPostgresSQLClient creates a new PostgreSQL client with connection pooling optimized for Lambda
func NewPostgresSQLClient(host, port, dbname, user, password, sslMode string) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslMode,
	)

	db, err := sql.Open(constants.DRIVER_NAME, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	// Lambda-optimized connection settings
	db.SetMaxOpenConns(2) // Max 2 open connections for Lambda
	db.SetMaxIdleConns(1) // Keep 1 idle connection

	// Validate connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewPostgresSQLClientFromParams connects with the database settings loaded from SSM.
// The RDS proxy endpoint is used when it is configured.
func NewPostgresSQLClientFromParams(params map[string]string) (*sql.DB, error) {
	host := params[constants.DATABASE_RDS_PROXY_URL]
	if host == "" {
		host = params[constants.DATABASE_RDS_ENDPOINT]
	}
	if host == "" {
		return nil, fmt.Errorf("no database host configured under %s", constants.SSM_PARAMETER_PATH)
	}

	return NewPostgresSQLClient(
		host,
		params[constants.DATABASE_PORT],
		params[constants.DATABASE_NAME],
		params[constants.DATABASE_USERNAME],
		params[constants.DATABASE_PASSWORD],
		params[constants.SSL_MODE],
	)
}
