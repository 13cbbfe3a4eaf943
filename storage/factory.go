package storage

import (
	"context"
	"fmt"

	"property-ingest/config"
	"property-ingest/utils"
)

// Backend names accepted by STORAGE_BACKEND.
const (
	BackendAuto     = "auto"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// New builds the adapter selected by cfg. With "auto", the file backend is
// used when the data directory is writable and the memory backend otherwise.
func New(ctx context.Context, cfg *config.Config, logger *utils.Logger) (Adapter, error) {
	opts := []Option{WithHistoryLimit(cfg.HistoryLimit)}

	backend := cfg.StorageBackend
	if backend == "" || backend == BackendAuto {
		if dirWritable(cfg.DataDir) {
			backend = BackendFile
		} else {
			logger.Warn("[storage] Data dir %q is not writable, using the memory backend", cfg.DataDir)
			backend = BackendMemory
		}
	}

	switch backend {
	case BackendFile:
		docs, err := NewFileDocuments(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		logger.Info("[storage] Using file backend at %s", cfg.DataDir)
		return NewDocumentAdapter(docs, logger, opts...), nil

	case BackendPostgres:
		docs, err := NewPostgresDocuments(ctx, cfg.DSN(), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("[storage] Using postgres backend (%s:%s/%s)", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
		return NewDocumentAdapter(docs, logger, opts...), nil

	case BackendMongo:
		docs, err := NewMongoDocuments(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		logger.Info("[storage] Using mongo backend (db %s)", cfg.MongoDB)
		return NewDocumentAdapter(docs, logger, opts...), nil

	case BackendMemory:
		var mirror DocumentStore
		if cfg.Mirror == "sqlite" {
			m, err := NewSQLiteMirror(cfg.MirrorPath)
			if err != nil {
				logger.Warn("[storage] Mirror unavailable, running without one: %v", err)
			} else {
				mirror = m
			}
		}
		logger.Info("[storage] Using memory backend (mirror: %t)", mirror != nil)
		return NewMemoryAdapter(ctx, mirror, logger, opts...), nil

	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
