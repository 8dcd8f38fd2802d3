package ports

import "github.com/ArkLabsHQ/bitswap/internal/core/domain"

type RepoManager interface {
	Swap() domain.SwapRepository
	Secret() domain.SecretRepository
	Close()
}
