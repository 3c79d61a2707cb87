package cmd

import (
	"github.com/cx-miguel-neiva/lightkeeper/utils"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func initialize() {
	if configFilePath == "" {
		configFilePath = vConfig.GetString(configFileFlag)
	}
	if configFilePath != "" {
		vConfig.SetConfigFile(configFilePath)
		cobra.CheckErr(vConfig.ReadInConfig())
		log.Info().Str("config", configFilePath).Msg("Loaded configuration file")
	}

	cobra.CheckErr(utils.BindFlags(rootCmd, vConfig, envPrefix))

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Logger.Level(level)
}
