package core

import (
	"log"
	"net"
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
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		SignInRate                float64 // requests per second, per client IP
		SignInBurst               int
	}

	DatabaseConfig struct {
		Engine          string // postgres (lib/pq) | pgx
		Host            string
		Port            string
		Name            string
		User            string
		Password        string
		AdminUser       string
		AdminPassword   string
		DisableTLS      bool
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		// AmbientClearTimeout bounds the reset of session variables after a unit of work.
		// A connection whose reset did not complete in time is discarded.
		AmbientClearTimeout time.Duration
	}

	IdentityConfig struct {
		Issuer     string
		Audience   string
		SigningKey string
	}

	Config struct {
		Env          string
		Build        string
		AppName      string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server   ServerConfig
		Database DatabaseConfig
		Identity IdentityConfig
	}
)

// Address returns the "host:port" of the database server.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Homeroom")
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddress", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("signInRate", 1.0)
	conf.SetDefault("signInBurst", 5)

	conf.SetDefault("databaseEngine", "postgres")
	conf.SetDefault("databaseHost", "localhost")
	conf.SetDefault("databasePort", "5432")
	conf.SetDefault("databaseName", "homeroom")
	conf.SetDefault("databaseUser", "homeroom")
	conf.SetDefault("databasePassword", "homeroom")
	conf.SetDefault("databaseAdminUser", "postgres")
	conf.SetDefault("databaseAdminPassword", "postgres")
	conf.SetDefault("databaseDisableTLS", true)
	conf.SetDefault("databaseMaxOpenConns", 25)
	conf.SetDefault("databaseMaxIdleConns", 5)
	conf.SetDefault("databaseConnMaxLifetime", 5*time.Minute)
	conf.SetDefault("databaseAmbientClearTimeout", 2*time.Second)

	conf.SetDefault("identityIssuer", "https://id.homeroom.localhost")
	conf.SetDefault("identityAudience", "homeroom")
	conf.SetDefault("identitySigningKey", "dev-identity-provider-shared-secret")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        conf.GetString("build"),
		AppName:      conf.GetString("appName"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Address:                   conf.GetString("serverAddress"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
			SignInRate:                conf.GetFloat64("signInRate"),
			SignInBurst:               conf.GetInt("signInBurst"),
		},
		Database: DatabaseConfig{
			Engine:              conf.GetString("databaseEngine"),
			Host:                conf.GetString("databaseHost"),
			Port:                conf.GetString("databasePort"),
			Name:                conf.GetString("databaseName"),
			User:                conf.GetString("databaseUser"),
			Password:            conf.GetString("databasePassword"),
			AdminUser:           conf.GetString("databaseAdminUser"),
			AdminPassword:       conf.GetString("databaseAdminPassword"),
			DisableTLS:          conf.GetBool("databaseDisableTLS"),
			MaxOpenConns:        conf.GetInt("databaseMaxOpenConns"),
			MaxIdleConns:        conf.GetInt("databaseMaxIdleConns"),
			ConnMaxLifetime:     conf.GetDuration("databaseConnMaxLifetime"),
			AmbientClearTimeout: conf.GetDuration("databaseAmbientClearTimeout"),
		},
		Identity: IdentityConfig{
			Issuer:     conf.GetString("identityIssuer"),
			Audience:   conf.GetString("identityAudience"),
			SigningKey: conf.GetString("identitySigningKey"),
		},
	}
}
