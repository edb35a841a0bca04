package config

type HTTPProtocol string

const (
	HTTPS HTTPProtocol = "https"
	HTTP  HTTPProtocol = "http"
)

type HttpServer struct {
	LogLevel           LogLevel     `mapstructure:"log_level"`
	HealthCheckLogging bool         `mapstructure:"health_check"`
	ListenAddress      string       `mapstructure:"listen_address"`
	Port               int          `mapstructure:"port"`
	Protocol           HTTPProtocol `mapstructure:"protocol"`
	CertFile           string       `mapstructure:"cert_file"`
	KeyFile            string       `mapstructure:"key_file"`
}

// OpsServer exposes health, readiness and metrics endpoints.
type OpsServer struct {
	LogLevel      LogLevel `mapstructure:"log_level"`
	Enabled       bool     `mapstructure:"enabled"`
	ListenAddress string   `mapstructure:"listen_address"`
	Port          int      `mapstructure:"port"`
}
