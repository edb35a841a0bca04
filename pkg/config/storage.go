package config

type PostgresConfig struct {
	LogLevel LogLevel `mapstructure:"log_level"`
	Hostname string   `mapstructure:"hostname"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password Password `mapstructure:"password"`
	Database string   `mapstructure:"database"`
}

type ClickHouseConfig struct {
	LogLevel LogLevel `mapstructure:"log_level"`
	Hostname string   `mapstructure:"hostname"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password Password `mapstructure:"password"`
	Database string   `mapstructure:"database"`
	Table    string   `mapstructure:"table"`

	DialTimeoutSeconds int `mapstructure:"dial_timeout_seconds"`
}
