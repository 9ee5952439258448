// Package cmd provides the tagfill command-line interface.
//
// Configuration is read from, in order of precedence:
//
//  1. command-line flags such as --config, --log-level or --data
//  2. TAGFILL_<SECTION>_<KEY> environment variables, e.g. TAGFILL_SERVER_PORT
//  3. the file named by --config or TAGFILL_CONFIG_FILE
//  4. .tagfill.yml in the working directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tagfill",
	Short: "Render HTML templates with repeat, if, else and insert directives",
	Long: `tagfill renders <template> elements against JSON or YAML data.

Templates use four directive elements and {{ name }} placeholders:
  <repeat for="item of items">   render the content once per element
  <if cond="status == 'open'">   keep the content when the condition holds
  <else>                         follows an if and keeps the other branch
  <insert template="id">         include another template

Quick Start:
  tagfill list                       List the templates found in scan paths
  tagfill render page --data d.yml   Render one template
  tagfill validate                   Check every template
  tagfill serve                      Preview templates with live reload`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tagfill.yml, can also use TAGFILL_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the config file and enables TAGFILL_ overrides.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TAGFILL_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tagfill")
	}

	viper.SetEnvPrefix("TAGFILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Only a missing default file falls back to defaults. Anything else is
	// reported by loadConfig.
	configReadErr = nil
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
		configReadErr = err
	}
}

// configReadErr holds the failure to read the config file, if any.
var configReadErr error
