package config

const (
	EnvPrefix = "COMPONENTRY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "COMPONENTRY_APP_ENV"
	EnvPort                   = "COMPONENTRY_APP_PORT"
	EnvDBDSN                  = "COMPONENTRY_DB_DSN"
	EnvDBHost                 = "COMPONENTRY_DB_HOST"
	EnvDBUser                 = "COMPONENTRY_DB_USER"
	EnvDBName                 = "COMPONENTRY_DB_NAME"
	EnvRedisURL               = "COMPONENTRY_REDIS_URL"
	EnvJWTSecret              = "COMPONENTRY_JWT_SECRET"
	EnvJWTIssuer              = "COMPONENTRY_JWT_ISSUER"
	EnvJWTExpMins             = "COMPONENTRY_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "COMPONENTRY_REFRESH_TOKEN_TTL_MINUTES"
	EnvUseSQLite              = "COMPONENTRY_USE_SQLITE"
	EnvRazorpayKeyID          = "COMPONENTRY_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret      = "COMPONENTRY_RAZORPAY_KEY_SECRET"
	EnvCronReminderDays       = "COMPONENTRY_CRON_REMINDER_DAYS_BEFORE"
)
