package config

const (
	EnvPrefix = "DEALROOM"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "DEALROOM_APP_ENV"
	EnvPort   = "DEALROOM_APP_PORT"

	EnvDBDSN  = "DEALROOM_DB_DSN"
	EnvDBHost = "DEALROOM_DB_HOST"
	EnvDBUser = "DEALROOM_DB_USER"
	EnvDBName = "DEALROOM_DB_NAME"

	EnvRedisURL = "DEALROOM_REDIS_URL"

	EnvJWTSecret  = "DEALROOM_JWT_SECRET"
	EnvJWTIssuer  = "DEALROOM_JWT_ISSUER"
	EnvJWTExpMins = "DEALROOM_JWT_EXPIRATION_MINUTES"

	EnvPubSubDomainTopic = "DEALROOM_PUBSUB_DOMAIN_TOPIC"

	EnvSettlementPayeeID = "DEALROOM_SETTLEMENT_PLATFORM_PAYEE_ID"
	EnvSettlementFeeRate = "DEALROOM_SETTLEMENT_DEFAULT_FEE_RATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
