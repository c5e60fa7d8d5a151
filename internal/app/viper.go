package app

import (
	"github.com/spf13/viper"

	"lab-notebook/notebook_go/pkg/logger"
)

// OptionsFromViper reads the flag/env configuration bound by the root
// command into Options, including the logger the flags describe.
func OptionsFromViper() Options {
	log, err := logger.CreateLogger(
		viper.GetString("log-file"),
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		viper.GetString("log-file") == "",
	)
	var extended logger.ExtendedLogger = log
	if err != nil {
		extended = logger.CreateDefaultLogger()
	}

	return Options{
		DBPath:         viper.GetString("db-path"),
		QueuePath:      viper.GetString("queue-path"),
		Provider:       viper.GetString("provider"),
		ModelID:        viper.GetString("model"),
		Temperature:    viper.GetFloat64("temperature"),
		MaxTurns:       viper.GetInt("max-turns"),
		CallTimeout:    viper.GetDuration("call-timeout"),
		SearchEndpoint: viper.GetString("search-endpoint"),
		SearchAPIKey:   viper.GetString("search-api-key"),
		PandocBin:      viper.GetString("pandoc-bin"),
		Workers:        viper.GetInt("workers"),
		Logger:         extended,
	}
}
