package db

import (
	"fmt"
	"strings"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	badgerdb "github.com/ArkLabsHQ/bitswap/internal/infrastructure/db/badger"
	"github.com/dgraph-io/badger/v4"
)

var (
	allowedTypes = strings.Join([]string{"badger"}, ",")
)

// ServiceConfig selects the storage backend. For badger, DbConfig holds the
// base directory (empty for in-memory), an optional badger.Logger and an
// optional encryption key for the secret store.
type ServiceConfig struct {
	DbType   string
	DbConfig []any
}

type service struct {
	swapRepo   domain.SwapRepository
	secretRepo domain.SecretRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var (
		swapRepo   domain.SwapRepository
		secretRepo domain.SecretRepository
		err        error
	)

	switch config.DbType {
	case "badger":
		if len(config.DbConfig) < 2 || len(config.DbConfig) > 3 {
			return nil, fmt.Errorf(
				"badger db config must have 2 or 3 elements, got %d", len(config.DbConfig),
			)
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DbConfig[1] != nil {
			logger, ok = config.DbConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}
		var encryptionKey []byte
		if len(config.DbConfig) == 3 && config.DbConfig[2] != nil {
			encryptionKey, ok = config.DbConfig[2].([]byte)
			if !ok {
				return nil, fmt.Errorf("invalid encryption key")
			}
		}

		swapRepo, err = badgerdb.NewSwapRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open swap db: %s", err)
		}
		secretRepo, err = badgerdb.NewSecretRepository(baseDir, logger, encryptionKey)
		if err != nil {
			swapRepo.Close()
			return nil, fmt.Errorf("failed to open secret db: %s", err)
		}

	default:
		return nil, fmt.Errorf(
			"unsopported db type %s, please select one of %s", config.DbType, allowedTypes,
		)
	}

	return &service{
		swapRepo:   swapRepo,
		secretRepo: secretRepo,
	}, nil
}

func (s *service) Swap() domain.SwapRepository {
	return s.swapRepo
}

func (s *service) Secret() domain.SecretRepository {
	return s.secretRepo
}

func (s *service) Close() {
	s.swapRepo.Close()
	s.secretRepo.Close()
}
