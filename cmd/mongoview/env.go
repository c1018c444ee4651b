package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/graph"
	"github.com/hanpama/mongoview/internal/language"
	"github.com/hanpama/mongoview/internal/logger"
	"github.com/hanpama/mongoview/internal/model"
	"github.com/hanpama/mongoview/internal/otel"
	"github.com/hanpama/mongoview/internal/resolver"
	"github.com/hanpama/mongoview/internal/store/mongostore"
	"github.com/hanpama/mongoview/internal/view"
)

// environment holds what the run commands share: a logger, the loaded views
// and the resources to release once the command is done.
type environment struct {
	log    logger.Logger
	views  *view.Set
	client *mongo.Client

	shutdownTracing func(context.Context) error
}

func newLogger() (*logger.ZapLogger, error) {
	return logger.NewLogger(viper.GetString(logFormatConf), viper.GetString(logLevelConf))
}

func compileOptions(log logger.Logger) []graph.Option {
	opts := []graph.Option{graph.WithLogger(log)}
	if viper.GetBool(strictModelsConf) {
		opts = append(opts, graph.WithStrictModels())
	}
	if viper.GetBool(skipUnresolvedConf) {
		opts = append(opts, graph.WithSkipUnresolved())
	}
	return opts
}

func resolverOptions(log logger.Logger) ([]resolver.Option, error) {
	policy, err := resolver.ParseRelationErrorPolicy(viper.GetString(relationErrorsConf))
	if err != nil {
		return nil, err
	}
	return []resolver.Option{
		resolver.WithLogger(log),
		resolver.WithConcurrency(viper.GetInt(concurrencyConf)),
		resolver.WithMaxInFlight(viper.GetInt64(maxInFlightConf)),
		resolver.WithRelationErrorPolicy(policy),
	}, nil
}

// compilePlans compiles every graph below the graphs directory without
// touching a database.
func compilePlans(ctx context.Context, log logger.Logger) ([]*view.GraphMetadata, map[string]*graph.Plan, error) {
	reg, err := model.LoadFile(viper.GetString(modelsFileConf))
	if err != nil {
		return nil, nil, err
	}
	d, err := view.NewFileSystemDiscovery(ctx, viper.GetString(graphsDirConf))
	if err != nil {
		return nil, nil, err
	}
	metas, err := d.ListMetadata(ctx)
	if err != nil {
		return nil, nil, err
	}
	plans := make(map[string]*graph.Plan, len(metas))
	for _, meta := range metas {
		source, err := d.ReadGraph(ctx, meta.Name)
		if err != nil {
			return nil, nil, err
		}
		g, err := language.ParseGraph(meta.Name, source)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", meta.FilePath, err)
		}
		p, err := graph.Compile(g, reg, compileOptions(log)...)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", meta.FilePath, err)
		}
		plans[meta.Name] = p
	}
	return metas, plans, nil
}

// openEnvironment connects to MongoDB and builds every view. Callers must
// close the returned environment.
func openEnvironment(ctx context.Context) (*environment, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}
	sourceDB := viper.GetString(mongoSourceDBConf)
	if sourceDB == "" {
		return nil, fmt.Errorf("a source database is required (--mongo-source-db)")
	}
	viewDB := viper.GetString(mongoViewDBConf)
	if viewDB == "" {
		viewDB = sourceDB
	}
	reg, err := model.LoadFile(viper.GetString(modelsFileConf))
	if err != nil {
		return nil, err
	}
	resolveOpts, err := resolverOptions(log)
	if err != nil {
		return nil, err
	}

	eventbus.Use(eventbus.New())
	shutdownTracing, err := otel.Setup(viper.GetString(otelEndpointConf), viper.GetString(otelServiceConf))
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}

	client, err := mongostore.Connect(ctx, viper.GetString(mongoURIConf))
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}
	env := &environment{log: log, client: client, shutdownTracing: shutdownTracing}

	src := mongostore.New(client.Database(sourceDB))
	dst := mongostore.New(client.Database(viewDB))
	env.views, err = view.LoadDir(viper.GetString(graphsDirConf), reg, src, dst,
		view.WithLogger(log),
		view.WithCompileOptions(compileOptions(log)...),
		view.WithResolverOptions(resolveOpts...),
		view.WithWriteConcurrency(viper.GetInt(concurrencyConf)),
	)
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	log.Info("views loaded",
		zap.Strings("views", env.views.Names()),
		zap.String("source_db", sourceDB),
		zap.String("view_db", viewDB))
	return env, nil
}

func (e *environment) Close(ctx context.Context) {
	if err := e.client.Disconnect(ctx); err != nil {
		e.log.Warn("mongo disconnect", zap.Error(err))
	}
	if err := e.shutdownTracing(ctx); err != nil {
		e.log.Warn("otel shutdown", zap.Error(err))
	}
}
