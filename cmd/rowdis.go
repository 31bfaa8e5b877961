package cmd

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/rowdis/config"
)

var (
	rowdisCmd = &cobra.Command{
		Use:          "rowdis",
		Short:        "A key-value server",
		Long:         "Rowdis is a Redis compatible key-value server built on transactional row storage.",
		SilenceUsage: true,
	}

	cfg = config.NewConfig(rowdisCmd.PersistentFlags())

	logFile = cfg.Var(new(string), "log-file").Usage("`file` to use for logging").
		Env("ROWDIS_LOG_FILE").String("rowdis.log")
	logLevel = cfg.Var(new(string), "log-level").
		Usage("log level: trace, debug, info, warn, error, fatal, or panic").
		Env("ROWDIS_LOG_LEVEL").String("info")
	logStderr = cfg.Var(new(bool), "log-stderr").Short("s").Usage("log to standard error").
		Bool(false)
	logWriter io.WriteCloser

	configFile = cfg.Var(new(string), "config-file").Usage("`file` to load config from").
		Env("ROWDIS_CONFIG_FILE").NoConfig().String("rowdis.hcl")
	noConfig = cfg.Var(new(bool), "no-config").Usage("don't load config file").NoConfig().
		Bool(false)
)

func init() {
	rowdisCmd.PersistentPreRunE = rowdisPreRun
	rowdisCmd.PersistentPostRun = rowdisPostRun

	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})
}

func Execute() error {
	return rowdisCmd.Execute()
}

func rowdisPreRun(cmd *cobra.Command, args []string) error {
	err := cfg.Env()
	if err != nil {
		return fmt.Errorf("rowdis: %s", err)
	}

	if *configFile != "" && !*noConfig {
		err = cfg.Load(*configFile)
		if os.IsNotExist(err) && !cmd.Flags().Changed("config-file") {
			err = nil
		}
		if err != nil {
			return fmt.Errorf("rowdis: %s", err)
		}
	}

	if !*logStderr && *logFile != "" {
		logWriter, err = os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("rowdis: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("rowdis: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("rowdis starting")
	return nil
}

func rowdisPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("rowdis done")

	if logWriter != nil {
		logWriter.Close()
	}
}
