package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/domain"
	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/pkg/contract"
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrIntentNotFound = errors.New("intent not found")

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type Config struct {
	// Topic is the broadcast topic used as order book.
	Topic string
	// RefundDelta is added to the current height when no refund height is
	// given on propose.
	RefundDelta uint32
	// Tokens restricts the tickers that can be swapped. Empty allows any.
	Tokens []string
	// AutoClaim lets the periodic sync claim as soon as it is possible.
	AutoClaim    bool
	SyncInterval time.Duration
}

type Service struct {
	BuildInfo BuildInfo

	cfg         Config
	identity    string
	wallet      ports.Wallet
	broadcaster ports.Broadcaster
	chain       ports.ChainInfo
	programs    ports.ProgramSource
	scheduler   ports.SchedulerService
	swapRepo    domain.SwapRepository

	engine   *CommitmentEngine
	book     *OrderBook
	locks    *keyedLocks
	watchers *xsync.MapOf[string, context.CancelFunc]
}

func NewService(
	ctx context.Context,
	buildInfo BuildInfo,
	cfg Config,
	wallet ports.Wallet,
	verifier ports.SignatureVerifier,
	broadcaster ports.Broadcaster,
	chain ports.ChainInfo,
	programs ports.ProgramSource,
	schedulerSvc ports.SchedulerService,
	repoManager ports.RepoManager,
	book *OrderBook,
) (*Service, error) {
	identity, err := wallet.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet public key: %w", err)
	}
	if err := htlc.ValidateKey(identity); err != nil {
		return nil, fmt.Errorf("invalid wallet public key: %w", err)
	}
	if book == nil {
		if book, err = NewOrderBook(DefaultOrderBookCapacity, verifier, cfg.Tokens); err != nil {
			return nil, err
		}
	}

	return &Service{
		BuildInfo:   buildInfo,
		cfg:         cfg,
		identity:    identity,
		wallet:      wallet,
		broadcaster: broadcaster,
		chain:       chain,
		programs:    programs,
		scheduler:   schedulerSvc,
		swapRepo:    repoManager.Swap(),
		engine:      NewCommitmentEngine(repoManager.Secret(), identity, nil),
		book:        book,
		locks:       newKeyedLocks(),
		watchers:    xsync.NewMapOf[string, context.CancelFunc](),
	}, nil
}

// Start restores the refund tasks of pending swaps, starts the periodic sync
// and subscribes to the configured topic.
func (s *Service) Start(ctx context.Context) error {
	s.scheduler.Start()

	swaps, err := s.swapRepo.GetByStatus(
		ctx, domain.SwapLocked, domain.SwapAnnounced, domain.SwapCounterLocked,
	)
	if err != nil {
		return fmt.Errorf("failed to get pending swaps: %w", err)
	}
	for _, swap := range swaps {
		if swap.LockerKey == s.identity && swap.LockTxId != "" {
			s.scheduleRefund(swap)
		}
	}
	log.Infof("restored %d pending swaps", len(swaps))

	if s.cfg.SyncInterval > 0 {
		if err := s.scheduler.Every(s.cfg.SyncInterval, func() {
			s.Sync(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to schedule sync: %w", err)
		}
	}

	if s.cfg.Topic != "" {
		if err := s.Watch(ctx, s.cfg.Topic); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Stop() {
	s.watchers.Range(func(topic string, cancel context.CancelFunc) bool {
		cancel()
		s.watchers.Delete(topic)
		return true
	})
	s.scheduler.Stop()
}

// Ready reports whether the service can take new swaps: the commitment engine
// is healthy and the chain height is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.engine.Err(); err != nil {
		return err
	}
	if _, err := s.chain.GetBlockHeight(ctx); err != nil {
		return fmt.Errorf("chain unreachable: %w", err)
	}
	return nil
}

func (s *Service) Identity() string {
	return s.identity
}

func (s *Service) OrderBook() *OrderBook {
	return s.book
}

// OnFatal registers a callback invoked when the commitment engine halts.
func (s *Service) OnFatal(fn func(error)) {
	s.engine.OnFatal(fn)
}

func (s *Service) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return s.wallet.Balances(ctx)
}

func (s *Service) GetSwap(ctx context.Context, id string) (*domain.Swap, error) {
	return s.swapRepo.Get(ctx, id)
}

func (s *Service) ListSwaps(ctx context.Context) ([]domain.Swap, error) {
	return s.swapRepo.GetAll(ctx)
}

// Propose creates a commitment for a new swap. A zero refundHeight defaults to
// the current height plus the configured delta.
func (s *Service) Propose(
	ctx context.Context, terms htlc.Terms, refundHeight uint32,
) (*domain.Swap, error) {
	if err := s.validateTerms(terms); err != nil {
		return nil, err
	}

	height, err := s.chain.GetBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block height: %w", err)
	}
	if refundHeight == 0 {
		refundHeight = height + s.cfg.RefundDelta
	}
	if refundHeight <= height {
		return nil, htlc.Errorf(
			htlc.ErrRefundHeightExpired, "refund height %d must be above current height %d",
			refundHeight, height,
		)
	}

	commitment, err := s.engine.CreateCommitment(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	swap := domain.Swap{
		Id:             uuid.New().String(),
		Role:           domain.RoleInitiator,
		CommitmentHash: commitment.Hash,
		Terms:          terms,
		LockerKey:      s.identity,
		RefundHeight:   refundHeight,
		Topic:          s.cfg.Topic,
		CreatedAt:      now,
		UpdatedAt:      now,
		Status:         domain.SwapProposed,
	}
	if err := s.swapRepo.Add(ctx, swap); err != nil {
		return nil, fmt.Errorf("failed to add swap: %w", err)
	}
	swapTransitions.WithLabelValues(swap.Role.String(), swap.Status.String()).Inc()

	log.WithField("swap", swap.Id).Infof(
		"proposed %s %s for %s %s", terms.FromAmount, terms.FromToken, terms.ToAmount, terms.ToToken,
	)
	return &swap, nil
}

// Lock executes the lock program of a proposed swap. If a previous attempt
// ended with an unknown outcome and the lock is found on chain, the swap is
// reconciled instead of locking twice.
func (s *Service) Lock(ctx context.Context, id string) (*domain.Swap, error) {
	swap, release, err := s.acquire(ctx, id, "lock", domain.SwapLocked)
	if err != nil {
		return nil, err
	}
	defer release()

	if existing, err := s.findLock(ctx, swap.CommitmentHash, s.identity); err != nil {
		return nil, err
	} else if existing != nil {
		log.WithField("swap", swap.Id).Warn("lock already on chain, reconciling")
		if err := swap.Locked(existing.TxId); err != nil {
			return nil, err
		}
		return swap, s.commit(ctx, swap)
	}

	height, err := s.chain.GetBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block height: %w", err)
	}

	program, err := htlc.CompileLock(htlc.LockParams{
		LockerKey:      s.identity,
		CommitmentHash: swap.CommitmentHash,
		Terms:          swap.Terms,
		RefundHeight:   swap.RefundHeight,
		CurrentHeight:  height,
	})
	if err != nil {
		return nil, err
	}

	txid, err := s.execute(ctx, "lock", program)
	if err != nil {
		s.recordFailure(ctx, swap, err)
		return nil, err
	}

	if err := swap.Locked(txid); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, swap); err != nil {
		return nil, err
	}
	s.scheduleRefund(*swap)
	return swap, nil
}

// Announce publishes the intent of a locked swap.
func (s *Service) Announce(ctx context.Context, id string) (*domain.Swap, error) {
	swap, release, err := s.acquire(ctx, id, "announce", domain.SwapAnnounced)
	if err != nil {
		return nil, err
	}
	defer release()

	topic := swap.Topic
	if topic == "" {
		topic = s.cfg.Topic
	}

	intent := domain.SwapIntent{
		ProposerKey:    s.identity,
		Topic:          topic,
		CommitmentHash: swap.CommitmentHash,
		Terms:          swap.Terms,
		RefundHeight:   swap.RefundHeight,
	}
	payload, err := intent.Payload()
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent: %w", err)
	}

	// The intent is bound to the swap creation time so that a retry
	// republishes the very same message.
	messageId, err := s.broadcaster.Publish(ctx, domain.OutboundMessage{
		Topic:     topic,
		Payload:   payload,
		CreatedAt: swap.CreatedAt,
	})
	if err != nil {
		if htlc.KindOf(err) == 0 {
			err = htlc.Wrap(htlc.ErrPublishFailed, err)
		}
		s.recordFailure(ctx, swap, err)
		return nil, err
	}

	if err := swap.Announced(messageId, topic); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, swap); err != nil {
		return nil, err
	}
	return swap, nil
}

// Take locks the mirrored leg of an intent from the order book. A zero
// refundHeight defaults to halfway between now and the intent's refund
// height, so that the taker's leg always expires first.
func (s *Service) Take(
	ctx context.Context, intentId string, refundHeight uint32,
) (*domain.Swap, error) {
	intent, ok := s.book.Get(intentId)
	if !ok {
		return nil, ErrIntentNotFound
	}
	if intent.ProposerKey == s.identity {
		return nil, htlc.Errorf(htlc.ErrInvalidTerms, "cannot take own intent")
	}
	if err := htlc.ValidateKey(intent.ProposerKey); err != nil {
		return nil, err
	}
	terms := intent.Terms.Mirror()
	if err := s.validateTerms(terms); err != nil {
		return nil, err
	}

	release, err := s.locks.tryLock(intent.CommitmentHash, "take")
	if err != nil {
		return nil, err
	}
	defer release()

	pending, err := s.pendingTake(ctx, *intent)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		// A previous attempt may have landed despite its error.
		reconciled, err := s.reconcileTake(ctx, pending)
		if err != nil {
			return nil, err
		}
		if reconciled {
			return pending, nil
		}
	}

	height, err := s.chain.GetBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block height: %w", err)
	}
	if refundHeight == 0 && intent.RefundHeight > height {
		refundHeight = height + (intent.RefundHeight-height)/2
	}
	if refundHeight >= intent.RefundHeight {
		return nil, htlc.Errorf(
			htlc.ErrInvalidTerms, "refund height %d must be below the intent's %d",
			refundHeight, intent.RefundHeight,
		)
	}
	if refundHeight <= height {
		return nil, htlc.Errorf(
			htlc.ErrRefundHeightExpired, "intent %s expires too soon at height %d",
			intent.Id, intent.RefundHeight,
		)
	}

	if err := s.auditIntent(ctx, *intent); err != nil {
		return nil, err
	}

	program, err := htlc.CompileLock(htlc.LockParams{
		LockerKey:      s.identity,
		RecipientKey:   intent.ProposerKey,
		CommitmentHash: intent.CommitmentHash,
		Terms:          terms,
		RefundHeight:   refundHeight,
		CurrentHeight:  height,
	})
	if err != nil {
		return nil, err
	}

	// The taker swap is stored before locking so that an unknown outcome can
	// be reconciled later. Until its lock lands it can be taken again.
	now := time.Now().Unix()
	swap := pending
	if swap == nil {
		swap = &domain.Swap{
			Id:        uuid.New().String(),
			Role:      domain.RoleTaker,
			CreatedAt: now,
			Status:    domain.SwapAnnounced,
		}
	}
	swap.CommitmentHash = intent.CommitmentHash
	swap.Terms = terms
	swap.LockerKey = s.identity
	swap.CounterpartyKey = intent.ProposerKey
	swap.RefundHeight = refundHeight
	swap.CounterRefundHeight = intent.RefundHeight
	swap.Topic = intent.Topic
	swap.IntentId = intent.Id
	swap.UpdatedAt = now

	if pending == nil {
		if err := s.swapRepo.Add(ctx, *swap); err != nil {
			return nil, fmt.Errorf("failed to add swap: %w", err)
		}
		swapTransitions.WithLabelValues(swap.Role.String(), swap.Status.String()).Inc()
	} else if err := s.swapRepo.Update(ctx, *swap); err != nil {
		return nil, fmt.Errorf("failed to update swap: %w", err)
	}

	txid, err := s.execute(ctx, "lock", program)
	if err != nil {
		s.recordFailure(ctx, swap, err)
		return nil, err
	}

	if err := s.takerLocked(ctx, swap, txid); err != nil {
		return nil, err
	}
	return swap, nil
}

// pendingTake returns the taker swap of intent whose lock never landed, if
// any. An intent already taken for good cannot be taken again.
func (s *Service) pendingTake(ctx context.Context, intent domain.SwapIntent) (*domain.Swap, error) {
	swaps, err := s.swapRepo.GetByCommitment(ctx, intent.CommitmentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get swaps: %w", err)
	}

	var pending *domain.Swap
	for i := range swaps {
		swap := swaps[i]
		if swap.Role == domain.RoleTaker && swap.Status == domain.SwapAnnounced && swap.LockTxId == "" {
			pending = &swap
			continue
		}
		return nil, htlc.Errorf(htlc.ErrIllegalTransition, "intent %s already taken", intent.Id)
	}
	return pending, nil
}

// reconcileTake completes a pending taker swap whose lock is found on chain.
func (s *Service) reconcileTake(ctx context.Context, swap *domain.Swap) (bool, error) {
	lock, err := s.findLock(ctx, swap.CommitmentHash, s.identity)
	if err != nil || lock == nil {
		return false, err
	}
	if record, err := htlc.ParseLockRecord(lock.Program); err == nil {
		swap.RefundHeight = record.RefundHeight
	}

	log.WithField("swap", swap.Id).Warn("lock already on chain, reconciling")
	if err := s.takerLocked(ctx, swap, lock.TxId); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) takerLocked(ctx context.Context, swap *domain.Swap, txid string) error {
	if err := swap.CounterLocked(txid, swap.CounterpartyKey, swap.CounterRefundHeight); err != nil {
		return err
	}
	swap.LockTxId = txid
	if err := s.commit(ctx, swap); err != nil {
		return err
	}
	s.scheduleRefund(*swap)
	return nil
}

// ObserveCounterLock looks for a taker's lock matching an announced swap. The
// swap is returned unchanged when none is found yet.
func (s *Service) ObserveCounterLock(ctx context.Context, id string) (*domain.Swap, error) {
	swap, err := s.swapRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.Role != domain.RoleInitiator || swap.Status != domain.SwapAnnounced {
		return swap, nil
	}

	release, err := s.locks.tryLock(swap.CommitmentHash, "observe")
	if err != nil {
		return nil, err
	}
	defer release()

	if swap, err = s.swapRepo.Get(ctx, id); err != nil {
		return nil, err
	}
	if swap.Status != domain.SwapAnnounced {
		return swap, nil
	}

	programs, err := s.programs.ExecutedPrograms(ctx, swap.CommitmentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get executed programs: %w", err)
	}
	for _, p := range programs {
		record, err := htlc.ParseLockRecord(p.Program)
		if err != nil || record.Locker == s.identity {
			continue
		}
		if err := matchCounterLock(*swap, *record, s.identity); err != nil {
			log.WithField("swap", swap.Id).WithError(err).Warn("ignoring counter lock")
			continue
		}

		if err := swap.CounterLocked(p.TxId, record.Locker, record.RefundHeight); err != nil {
			return nil, err
		}
		if err := s.commit(ctx, swap); err != nil {
			return nil, err
		}
		return swap, nil
	}
	return swap, nil
}

// Claim redeems the counterparty's leg. The initiator uses its own secret, a
// taker uses the secret revealed by the initiator's claim. Nothing is
// executed unless the secret matches the commitment.
func (s *Service) Claim(ctx context.Context, id string) (*domain.Swap, error) {
	swap, release, err := s.acquire(ctx, id, "claim", domain.SwapClaimed)
	if err != nil {
		return nil, err
	}
	defer release()

	var secret htlc.Secret
	switch swap.Role {
	case domain.RoleInitiator:
		secret, err = s.engine.LookupSecret(ctx, swap.CommitmentHash)
	case domain.RoleTaker:
		secret, err = s.revealedSecret(ctx, swap.CommitmentHash)
	default:
		err = fmt.Errorf("unknown role %d", swap.Role)
	}
	if err != nil {
		return nil, err
	}
	if !s.engine.Verify(secret[:], swap.CommitmentHash) {
		return nil, htlc.Errorf(htlc.ErrHashMismatch, "secret does not match %s", swap.CommitmentHash)
	}

	program, err := htlc.CompileClaim(secret.Bytes(), swap.CommitmentHash, swap.CounterpartyKey)
	if err != nil {
		return nil, err
	}

	txid, err := s.execute(ctx, "claim", program)
	if err != nil {
		s.recordFailure(ctx, swap, err)
		return nil, err
	}

	if err := swap.Claimed(txid); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, swap); err != nil {
		return nil, err
	}
	s.finalize(ctx, swap)
	return swap, nil
}

// Refund recovers this identity's leg once the chain is past its refund
// height.
func (s *Service) Refund(ctx context.Context, id string) (*domain.Swap, error) {
	swap, release, err := s.acquire(ctx, id, "refund", domain.SwapRefunded)
	if err != nil {
		return nil, err
	}
	defer release()

	if swap.LockerKey != s.identity {
		return nil, htlc.Errorf(htlc.ErrNotLocker, "swap %s was locked by %s", swap.Id, swap.LockerKey)
	}

	height, err := s.chain.GetBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block height: %w", err)
	}

	program, err := htlc.CompileRefund(htlc.RefundParams{
		LockerKey:      s.identity,
		CommitmentHash: swap.CommitmentHash,
		RefundHeight:   swap.RefundHeight,
		CurrentHeight:  height,
	})
	if err != nil {
		return nil, err
	}

	txid, err := s.execute(ctx, "refund", program)
	if err != nil {
		s.recordFailure(ctx, swap, err)
		return nil, err
	}

	if err := swap.Refunded(txid); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, swap); err != nil {
		return nil, err
	}
	s.finalize(ctx, swap)
	return swap, nil
}

// Ingest feeds a message to the local order book.
func (s *Service) Ingest(ctx context.Context, msg domain.InboundMessage) domain.IngestResult {
	return s.book.Ingest(ctx, msg)
}

func (s *Service) Query(from, to htlc.Ticker) []domain.SwapIntent {
	return s.book.Query(from, to)
}

// Watch subscribes to topic and ingests every message received on it until
// StopWatching is called. Watching a topic twice is a no-op.
func (s *Service) Watch(ctx context.Context, topic string) error {
	if topic == "" {
		topic = s.cfg.Topic
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if _, loaded := s.watchers.LoadOrStore(topic, cancel); loaded {
		cancel()
		return nil
	}

	msgs, err := s.broadcaster.Subscribe(watchCtx, topic)
	if err != nil {
		s.watchers.Delete(topic)
		cancel()
		return htlc.Wrap(htlc.ErrPublishFailed, fmt.Errorf("failed to subscribe to %s: %w", topic, err))
	}

	go func() {
		for msg := range msgs {
			res := s.book.Ingest(watchCtx, msg)
			if res.Status == domain.IngestRejected {
				log.WithField("topic", topic).Debugf("rejected message %s: %s", msg.Id, res.Reason)
			}
		}
		log.Debugf("stopped watching topic %s", topic)
	}()

	log.Infof("watching topic %s", topic)
	return nil
}

// StopWatching unsubscribes from topic and discards the intents received on
// it. Contracts already executed are unaffected.
func (s *Service) StopWatching(topic string) {
	cancel, ok := s.watchers.LoadAndDelete(topic)
	if !ok {
		return
	}
	cancel()
	dropped := s.book.DropTopic(topic)
	log.Infof("stopped watching topic %s, dropped %d intents", topic, dropped)
}

// Sync advances pending swaps from what can be observed on chain.
func (s *Service) Sync(ctx context.Context) {
	swaps, err := s.swapRepo.GetByStatus(ctx, domain.SwapAnnounced, domain.SwapCounterLocked)
	if err != nil {
		log.WithError(err).Warn("failed to get pending swaps")
		return
	}

	for _, swap := range swaps {
		logger := log.WithField("swap", swap.Id)

		if swap.Role == domain.RoleTaker && swap.Status == domain.SwapAnnounced {
			if err := s.syncPendingTake(ctx, &swap); err != nil {
				logger.WithError(err).Warn("failed to reconcile taker lock")
			}
			continue
		}

		if swap.Role == domain.RoleInitiator && swap.Status == domain.SwapAnnounced {
			updated, err := s.ObserveCounterLock(ctx, swap.Id)
			if err != nil {
				logger.WithError(err).Warn("failed to observe counter lock")
				continue
			}
			swap = *updated
		}

		if !s.cfg.AutoClaim || swap.Status != domain.SwapCounterLocked {
			continue
		}
		if swap.Role == domain.RoleTaker {
			if _, err := s.revealedSecret(ctx, swap.CommitmentHash); err != nil {
				continue
			}
		}
		if _, err := s.Claim(ctx, swap.Id); err != nil {
			logger.WithError(err).Warn("failed to claim")
		}
	}
}

func (s *Service) syncPendingTake(ctx context.Context, swap *domain.Swap) error {
	release, err := s.locks.tryLock(swap.CommitmentHash, "sync")
	if err != nil {
		return err
	}
	defer release()

	current, err := s.swapRepo.Get(ctx, swap.Id)
	if err != nil {
		return err
	}
	if current.LockTxId != "" || current.Status != domain.SwapAnnounced {
		return nil
	}
	_, err = s.reconcileTake(ctx, current)
	return err
}

func (s *Service) acquire(
	ctx context.Context, id, op string, target domain.SwapStatus,
) (*domain.Swap, func(), error) {
	swap, err := s.swapRepo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	release, err := s.locks.tryLock(swap.CommitmentHash, op)
	if err != nil {
		return nil, nil, err
	}

	// Reload under the lock, the swap may have moved meanwhile.
	swap, err = s.swapRepo.Get(ctx, id)
	if err != nil {
		release()
		return nil, nil, err
	}
	if !domain.CanTransition(swap.Status, target) {
		release()
		return nil, nil, htlc.Errorf(
			htlc.ErrIllegalTransition, "cannot %s swap %s in status %s", op, swap.Id, swap.Status,
		)
	}
	return swap, release, nil
}

// execute dry-runs program before handing it to the wallet, so that a program
// that would abort is never submitted.
func (s *Service) execute(ctx context.Context, kind string, program contract.Program) (string, error) {
	trace := contract.Evaluate(program)
	if trace.Aborted {
		executionTotal.WithLabelValues(kind, "aborted").Inc()
		if errors.Is(trace.Err, contract.ErrAssertionFailed) {
			return "", htlc.Wrap(htlc.ErrHashMismatch, trace.Err)
		}
		return "", htlc.Wrap(htlc.ErrExecutionRejected, trace.Err)
	}

	start := time.Now()
	txid, err := s.wallet.Execute(ctx, program)
	executionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		executionTotal.WithLabelValues(kind, "ok").Inc()
		return txid, nil
	case errors.Is(err, htlc.ErrExecutionRejected):
		executionTotal.WithLabelValues(kind, "rejected").Inc()
		return "", err
	case htlc.FundsAtRisk(err):
		executionTotal.WithLabelValues(kind, "ambiguous").Inc()
		return "", err
	default:
		// An unclassified failure may have happened after submission.
		executionTotal.WithLabelValues(kind, "ambiguous").Inc()
		return "", htlc.Wrap(htlc.ErrExecutionAmbiguous, err)
	}
}

func (s *Service) commit(ctx context.Context, swap *domain.Swap) error {
	if err := s.swapRepo.Update(ctx, *swap); err != nil {
		return fmt.Errorf("failed to update swap: %w", err)
	}
	swapTransitions.WithLabelValues(swap.Role.String(), swap.Status.String()).Inc()
	log.WithField("swap", swap.Id).Infof("swap %s", swap.Status)
	return nil
}

func (s *Service) recordFailure(ctx context.Context, swap *domain.Swap, err error) {
	logger := log.WithField("swap", swap.Id).WithError(err)
	if htlc.FundsAtRisk(err) {
		logger.Error("execution outcome unknown, funds may be at risk")
	} else {
		logger.Warn("execution failed")
	}

	swap.Failed(err.Error())
	if err := s.swapRepo.Update(ctx, *swap); err != nil {
		log.WithError(err).Warn("failed to record swap failure")
	}
}

func (s *Service) finalize(ctx context.Context, swap *domain.Swap) {
	s.scheduler.Cancel(swap.Id)
	if swap.Role != domain.RoleInitiator {
		return
	}
	if err := s.engine.Purge(ctx, swap.CommitmentHash); err != nil {
		log.WithField("swap", swap.Id).WithError(err).Warn("failed to purge secret")
	}
}

func (s *Service) scheduleRefund(swap domain.Swap) {
	id := swap.Id
	if err := s.scheduler.ScheduleAfterHeight(id, swap.RefundHeight, func() {
		if _, err := s.Refund(context.Background(), id); err != nil {
			logger := log.WithField("swap", id).WithError(err)
			if !refundRetryable(err) {
				logger.Warn("automatic refund failed")
				return
			}
			logger.Warn("automatic refund failed, retrying at next block")
			retry := swap
			if height, err := s.chain.GetBlockHeight(context.Background()); err == nil && height > retry.RefundHeight {
				retry.RefundHeight = height
			}
			s.scheduleRefund(retry)
		}
	}); err != nil {
		log.WithField("swap", id).WithError(err).Warn("failed to schedule refund")
	}
}

// refundRetryable tells whether a failed automatic refund should be tried
// again. Swaps already settled or not ours are left alone.
func refundRetryable(err error) bool {
	switch {
	case errors.Is(err, htlc.ErrIllegalTransition), errors.Is(err, htlc.ErrNotLocker):
		return false
	default:
		return true
	}
}

func (s *Service) findLock(
	ctx context.Context, hash htlc.Hash, locker string,
) (*ports.ExecutedProgram, error) {
	programs, err := s.programs.ExecutedPrograms(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get executed programs: %w", err)
	}
	for _, p := range programs {
		record, err := htlc.ParseLockRecord(p.Program)
		if err != nil {
			continue
		}
		if record.Locker == locker && record.CommitmentHash == hash {
			return &p, nil
		}
	}
	return nil, nil
}

// auditIntent checks that the proposer really locked what the intent offers.
func (s *Service) auditIntent(ctx context.Context, intent domain.SwapIntent) error {
	lock, err := s.findLock(ctx, intent.CommitmentHash, intent.ProposerKey)
	if err != nil {
		return err
	}
	if lock == nil {
		return htlc.Errorf(htlc.ErrInvalidTerms, "no lock found for intent %s", intent.Id)
	}
	record, err := htlc.ParseLockRecord(lock.Program)
	if err != nil {
		return err
	}
	if !sameTerms(record.Terms, intent.Terms) || record.RefundHeight != intent.RefundHeight {
		return htlc.Errorf(htlc.ErrInvalidTerms, "lock of intent %s does not match its terms", intent.Id)
	}
	return nil
}

func (s *Service) revealedSecret(ctx context.Context, hash htlc.Hash) (htlc.Secret, error) {
	programs, err := s.programs.ExecutedPrograms(ctx, hash)
	if err != nil {
		return htlc.Secret{}, fmt.Errorf("failed to get executed programs: %w", err)
	}
	for _, p := range programs {
		if secret, ok := htlc.ExtractSecret(p.Program, hash); ok {
			return secret, nil
		}
	}
	return htlc.Secret{}, htlc.Errorf(htlc.ErrSecretNotFound, "secret of %s not revealed yet", hash)
}

func (s *Service) validateTerms(terms htlc.Terms) error {
	if err := terms.Validate(); err != nil {
		return err
	}
	if len(s.cfg.Tokens) == 0 {
		return nil
	}
	for _, t := range []htlc.Ticker{terms.FromToken, terms.ToToken} {
		supported := false
		for _, allowed := range s.cfg.Tokens {
			if string(t) == allowed {
				supported = true
				break
			}
		}
		if !supported {
			return htlc.Errorf(htlc.ErrInvalidTerms, "unsupported token %s", t)
		}
	}
	return nil
}
