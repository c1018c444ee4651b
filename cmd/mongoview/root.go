package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config keys shared by every command.
const (
	mongoURIConf        = "mongo.uri"
	mongoSourceDBConf   = "mongo.source-db"
	mongoViewDBConf     = "mongo.view-db"
	graphsDirConf       = "graphs.dir"
	modelsFileConf      = "models.file"
	concurrencyConf     = "resolver.concurrency"
	maxInFlightConf     = "resolver.max-in-flight"
	relationErrorsConf  = "resolver.relation-errors"
	strictModelsConf    = "compile.strict-models"
	skipUnresolvedConf  = "compile.skip-unresolved"
	logFormatConf       = "log.format"
	logLevelConf        = "log.level"
	otelEndpointConf    = "otel.endpoint"
	otelServiceConf     = "otel.service"
	serverAddrConf      = "server.addr"
	serverTimeoutConf   = "server.timeout"
	serverPrettyConf    = "server.pretty"
	serverMaxBodyConf   = "server.max-body-bytes"
	recomputeTypeFlag   = "type"
	recomputeIDFlag     = "id"
	recomputeFilterFlag = "filter"
)

// mustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

// NewRootCommand enables all children commands to read flags from CLI flags, environment
// variables prefixed with MONGOVIEW, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("MONGOVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/mongoview", "$HOME/.mongoview", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}
	_ = viper.ReadInConfig()

	cmd := &cobra.Command{
		Use:   "mongoview",
		Short: "Materialize nested read views from MongoDB collections",
		Long: `mongoview compiles relation graphs into nested read views.

Each graph file under <graphs-dir>/specs describes one view: a root collection and the
relations to embed. mongoview materializes every view document, and recomputes just the
documents that embed a changed source document.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("mongo-uri", "mongodb://localhost:27017", "the MongoDB connection uri")
	mustBindPFlag(mongoURIConf, flags.Lookup("mongo-uri"))
	flags.String("mongo-source-db", "", "the database holding the source collections")
	mustBindPFlag(mongoSourceDBConf, flags.Lookup("mongo-source-db"))
	flags.String("mongo-view-db", "", "the database receiving view collections (defaults to the source database)")
	mustBindPFlag(mongoViewDBConf, flags.Lookup("mongo-view-db"))

	flags.String("graphs-dir", ".", "the directory whose specs/ subdirectory holds *.graphql view graphs")
	mustBindPFlag(graphsDirConf, flags.Lookup("graphs-dir"))
	flags.String("models-file", "models.yaml", "the model registry (YAML or JSON)")
	mustBindPFlag(modelsFileConf, flags.Lookup("models-file"))

	flags.Int("resolver-concurrency", 16, "concurrent tasks per entity level")
	mustBindPFlag(concurrencyConf, flags.Lookup("resolver-concurrency"))
	flags.Int64("resolver-max-in-flight", 32, "maximum store queries in flight per view run")
	mustBindPFlag(maxInFlightConf, flags.Lookup("resolver-max-in-flight"))
	flags.String("resolver-relation-errors", "fail", "what a failed relation does: 'fail' the level or 'omit' the field")
	mustBindPFlag(relationErrorsConf, flags.Lookup("resolver-relation-errors"))

	flags.Bool("compile-strict-models", false, "reject graphs that reach types missing from the model registry")
	mustBindPFlag(strictModelsConf, flags.Lookup("compile-strict-models"))
	flags.Bool("compile-skip-unresolved", false, "skip methods that name no relation instead of failing")
	mustBindPFlag(skipUnresolvedConf, flags.Lookup("compile-skip-unresolved"))

	flags.String("log-format", "text", "the log format to output: 'text' or 'json'")
	mustBindPFlag(logFormatConf, flags.Lookup("log-format"))
	flags.String("log-level", "info", "the log level: 'none', 'debug', 'info', 'warn' or 'error'")
	mustBindPFlag(logLevelConf, flags.Lookup("log-level"))

	flags.String("otel-endpoint", "", "the OTLP collector endpoint; tracing is off when empty")
	mustBindPFlag(otelEndpointConf, flags.Lookup("otel-endpoint"))
	flags.String("otel-service", "mongoview", "the OpenTelemetry service name")
	mustBindPFlag(otelServiceConf, flags.Lookup("otel-service"))

	cmd.AddCommand(
		NewServeCommand(),
		NewMaterializeCommand(),
		NewRecomputeCommand(),
		NewFilterCommand(),
		NewCompileCommand(),
	)
	return cmd
}
