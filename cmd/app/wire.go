//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/qa-trainer/internal/bootstrap"
	"github.com/yanqian/qa-trainer/internal/domain/embedding"
	"github.com/yanqian/qa-trainer/internal/domain/training"
	"github.com/yanqian/qa-trainer/internal/infra/config"
	httpiface "github.com/yanqian/qa-trainer/internal/interface/http"
)

func initializeApp(configPath string) (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		provideLogger,
		provideTrainingConfig,
		providePostgresPool,
		provideRunRepository,
		provideObjectStorage,
		provideJobQueue,
		provideTrainingQueue,
		provideEmbeddingCache,
		embedding.NewLoader,
		wire.Bind(new(training.EmbeddingLoader), new(*embedding.Loader)),
		training.DefaultRegistry,
		training.NewService,
		provideRunHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
