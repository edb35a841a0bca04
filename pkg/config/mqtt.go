package config

type MQTTClient struct {
	LogLevel  LogLevel `mapstructure:"log_level"`
	BrokerURL string   `mapstructure:"broker_url"`
	ClientID  string   `mapstructure:"client_id"`
	Username  string   `mapstructure:"username"`
	Password  Password `mapstructure:"password"`

	KeepAliveSeconds      int `mapstructure:"keep_alive_seconds"`
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
}
