package config

const (
	EnvPrefix = "AGROMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	GatewaySandboxURL = "https://sandbox.sslcommerz.com"
	GatewayLiveURL    = "https://securepay.sslcommerz.com"
)

const (
	EnvAppEnv      = "AGROMARKET_APP_ENV"
	EnvPort        = "AGROMARKET_APP_PORT"
	EnvDBDSN       = "AGROMARKET_DB_DSN"
	EnvDBDriver    = "AGROMARKET_DB_DRIVER"
	EnvDBHost      = "AGROMARKET_DB_HOST"
	EnvDBUser      = "AGROMARKET_DB_USER"
	EnvDBName      = "AGROMARKET_DB_NAME"
	EnvRedisURL    = "AGROMARKET_REDIS_URL"
	EnvJWTSecret   = "AGROMARKET_JWT_SECRET"
	EnvJWTIssuer   = "AGROMARKET_JWT_ISSUER"
	EnvStoreID     = "AGROMARKET_GATEWAY_STORE_ID"
	EnvStorePass   = "AGROMARKET_GATEWAY_STORE_PASSWORD"
	EnvGatewayLive = "AGROMARKET_GATEWAY_LIVE"
	EnvGatewayURL  = "AGROMARKET_GATEWAY_BASE_URL"
	EnvBackendURL  = "AGROMARKET_BACKEND_URL"
	EnvFrontendURL = "AGROMARKET_FRONTEND_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
