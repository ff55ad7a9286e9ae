package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		RenderTimeout             time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		Driver            string // local | s3
		LocalRoot         string
		S3Bucket          string
		S3Region          string
		S3Endpoint        string
		S3AccessKeyID     string
		S3SecretAccessKey string
	}

	CertificatesConfig struct {
		LinkTTL              time.Duration
		RenderConcurrency    int
		MailConcurrency      int
		MaxAttempts          int
		RetryInitialInterval time.Duration
	}

	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		APIBaseURL       string
		DefaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		Server       ServerConfig
		Database     DatabaseConfig
		Storage      StorageConfig
		Certificates CertificatesConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// DefaultFromAddress parses Config.DefaultFromEmail ("Name <addr>" or "addr").
func (conf *Config) DefaultFromAddress() mail.Address {
	if addr, err := mail.ParseAddress(conf.DefaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: conf.AppName, Address: conf.DefaultFromEmail}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Sanaa")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("apiBaseURL", "http://localhost:8000")
	v.SetDefault("defaultFromEmail", "Sanaa <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.renderTimeout", 60*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "sanaa")
	v.SetDefault("database.user", "sanaa")
	v.SetDefault("database.password", "sanaa")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.localRoot", "media")
	v.SetDefault("storage.s3Bucket", "")
	v.SetDefault("storage.s3Region", "us-east-1")
	v.SetDefault("storage.s3Endpoint", "")
	v.SetDefault("storage.s3AccessKeyID", "")
	v.SetDefault("storage.s3SecretAccessKey", "")

	v.SetDefault("certificates.linkTTL", 30*24*time.Hour)
	v.SetDefault("certificates.renderConcurrency", 4)
	v.SetDefault("certificates.mailConcurrency", 5)
	v.SetDefault("certificates.maxAttempts", 3)
	v.SetDefault("certificates.retryInitialInterval", 500*time.Millisecond)
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed with the upper-cased env, eg. PROD_SERVER_HOST.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	conf.Env = env
	conf.WorkDir = workDir
	return &conf
}
