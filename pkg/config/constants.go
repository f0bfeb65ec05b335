package config

const (
	EnvPrefix = "PINNACLE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PINNACLE_DB_DSN"
	EnvDBHost = "PINNACLE_DB_HOST"
	EnvDBUser = "PINNACLE_DB_USER"
	EnvDBName = "PINNACLE_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
