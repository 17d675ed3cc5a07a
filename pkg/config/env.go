package config

// EnvPrefix is handed to envconfig; every field carries its full name as the
// alt key so the prefix only matters for untagged fields.
const EnvPrefix = "SHOPCART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "SHOPCART_APP_ENV"
	EnvPort         = "SHOPCART_APP_PORT"
	EnvLogLevel     = "SHOPCART_LOG_LEVEL"
	EnvDBDSN        = "SHOPCART_DB_DSN"
	EnvDBHost       = "SHOPCART_DB_HOST"
	EnvDBPort       = "SHOPCART_DB_PORT"
	EnvDBUser       = "SHOPCART_DB_USER"
	EnvDBPassword   = "SHOPCART_DB_PASSWORD"
	EnvDBName       = "SHOPCART_DB_NAME"
	EnvRedisURL     = "SHOPCART_REDIS_URL"
	EnvJWTSecret    = "SHOPCART_JWT_SECRET"
	EnvJWTIssuer    = "SHOPCART_JWT_ISSUER"
	EnvJWTExpMins   = "SHOPCART_JWT_EXPIRATION_MINUTES"
	EnvCartClears   = "SHOPCART_CART_REMOVE_CLEARS_CART"
	EnvCartCacheTTL = "SHOPCART_CART_CACHE_TTL"
	EnvAutoMigrate  = "SHOPCART_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
