package config

const (
	EnvPrefix = "SETTLEMENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv         = "SETTLEMENT_APP_ENV"
	EnvPort           = "SETTLEMENT_APP_PORT"
	EnvDBDSN          = "SETTLEMENT_DB_DSN"
	EnvDBHost         = "SETTLEMENT_DB_HOST"
	EnvDBUser         = "SETTLEMENT_DB_USER"
	EnvDBName         = "SETTLEMENT_DB_NAME"
	EnvRedisURL       = "SETTLEMENT_REDIS_URL"
	EnvJWTSecret      = "SETTLEMENT_JWT_SECRET"
	EnvJWTIssuer      = "SETTLEMENT_JWT_ISSUER"
	EnvCompanyCountry = "SETTLEMENT_COMPANY_COUNTRY"
	EnvCompanyIBAN    = "SETTLEMENT_COMPANY_IBAN"
	EnvMailboxHost    = "SETTLEMENT_MAILBOX_HOST"
	EnvMailboxUser    = "SETTLEMENT_MAILBOX_USERNAME"
	EnvMailboxPass    = "SETTLEMENT_MAILBOX_PASSWORD"
	EnvCronInterval   = "SETTLEMENT_CRON_INTERVAL"
	EnvAlertsTopic    = "SETTLEMENT_PUBSUB_ALERTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
