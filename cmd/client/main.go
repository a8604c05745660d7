package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fares7elsadek/syncspace-watch/internal/client"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	serverURL = configVar[string]{
		envKey:       "CLIENT_SERVER_URL",
		flagKey:      "server-url",
		defaultValue: "http://localhost:8080",
	}
	host = configVar[string]{
		envKey:       "CLIENT_HOST",
		flagKey:      "host",
		defaultValue: "127.0.0.1",
	}
	port = configVar[int]{
		envKey:       "CLIENT_PORT",
		flagKey:      "port",
		defaultValue: 8090,
	}
	logLevel = configVar[string]{
		envKey:       "CLIENT_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	userID = configVar[string]{
		envKey:       "CLIENT_USER_ID",
		flagKey:      "user-id",
		defaultValue: "",
	}
	username = configVar[string]{
		envKey:       "CLIENT_USERNAME",
		flagKey:      "username",
		defaultValue: "",
	}
	driftThreshold = configVar[float64]{
		envKey:       "CLIENT_DRIFT_THRESHOLD_SECONDS",
		flagKey:      "drift-threshold-seconds",
		defaultValue: 2.5,
	}
	checkInterval = configVar[int]{
		envKey:       "CLIENT_CHECK_INTERVAL_SECONDS",
		flagKey:      "check-interval-seconds",
		defaultValue: 15,
	}
	settleDelay = configVar[int]{
		envKey:       "CLIENT_SETTLE_DELAY_MILLIS",
		flagKey:      "settle-delay-millis",
		defaultValue: 500,
	}
	seekRetries = configVar[int]{
		envKey:       "CLIENT_SEEK_RETRIES",
		flagKey:      "seek-retries",
		defaultValue: 1,
	}
)

func loadClientConfig() *client.ClientConfig {
	pflag.String(serverURL.flagKey, serverURL.defaultValue, "Backbone server URL")
	pflag.String(host.flagKey, host.defaultValue, "Local control listen host")
	pflag.Int(port.flagKey, port.defaultValue, "Local control listen port")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(userID.flagKey, userID.defaultValue, "Local participant id")
	pflag.String(username.flagKey, username.defaultValue, "Local participant username")
	pflag.Float64(driftThreshold.flagKey, driftThreshold.defaultValue, "Drift threshold in seconds before a corrective seek")
	pflag.Int(checkInterval.flagKey, checkInterval.defaultValue, "Seconds between drift checks")
	pflag.Int(settleDelay.flagKey, settleDelay.defaultValue, "Milliseconds to let a seek settle")
	pflag.Int(seekRetries.flagKey, seekRetries.defaultValue, "Bounded catch-up re-seek attempts")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(serverURL.flagKey, serverURL.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(userID.flagKey, userID.envKey)
	viper.BindEnv(username.flagKey, username.envKey)
	viper.BindEnv(driftThreshold.flagKey, driftThreshold.envKey)
	viper.BindEnv(checkInterval.flagKey, checkInterval.envKey)
	viper.BindEnv(settleDelay.flagKey, settleDelay.envKey)
	viper.BindEnv(seekRetries.flagKey, seekRetries.envKey)

	viper.SetDefault(serverURL.flagKey, serverURL.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(userID.flagKey, userID.defaultValue)
	viper.SetDefault(username.flagKey, username.defaultValue)
	viper.SetDefault(driftThreshold.flagKey, driftThreshold.defaultValue)
	viper.SetDefault(checkInterval.flagKey, checkInterval.defaultValue)
	viper.SetDefault(settleDelay.flagKey, settleDelay.defaultValue)
	viper.SetDefault(seekRetries.flagKey, seekRetries.defaultValue)

	return &client.ClientConfig{
		ServerURL:             viper.GetString(serverURL.flagKey),
		Host:                  viper.GetString(host.flagKey),
		Port:                  viper.GetInt(port.flagKey),
		LogLevel:              viper.GetString(logLevel.flagKey),
		UserID:                viper.GetString(userID.flagKey),
		Username:              viper.GetString(username.flagKey),
		DriftThresholdSeconds: viper.GetFloat64(driftThreshold.flagKey),
		CheckIntervalSeconds:  viper.GetInt(checkInterval.flagKey),
		SettleDelayMillis:     viper.GetInt(settleDelay.flagKey),
		SeekRetries:           viper.GetInt(seekRetries.flagKey),
	}
}

func main() {
	ctx := context.Background()

	clientConfig := loadClientConfig()

	jsonConfig, _ := json.MarshalIndent(clientConfig, "", "  ")
	fmt.Printf("starting watch client with config: %s\n", jsonConfig)

	log.Fatal(client.Run(ctx, clientConfig))
}
