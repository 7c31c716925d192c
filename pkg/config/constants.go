package config

// EnvPrefix is passed to envconfig; individual tags carry the full name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvDBDSN  = "LEDGERCORE_DB_DSN"
	EnvDBHost = "LEDGERCORE_DB_HOST"
	EnvDBUser = "LEDGERCORE_DB_USER"
	EnvDBName = "LEDGERCORE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
