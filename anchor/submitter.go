package anchor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"

	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/module"
	"github.com/h2registry/h2-registry/module/metrics"
)

// Receipt is the result of a successful submission.
type Receipt struct {
	ID ExternalID
	// Root is the root stored under ID. It differs from the submitted root
	// only if the slot was already taken by another root.
	Root hash.Hash
	// TxRef is the external transaction reference. For an id that was
	// already anchored it is the transaction that set the slot, and empty
	// only if that transaction cannot be found.
	TxRef    string
	Nonce    uint64
	Fees     Fees
	Attempts int
	// AlreadyAnchored is true if no new write was needed.
	AlreadyAnchored bool
	Confirmed       bool
}

// Submitter commits roots to an external, append-once ledger.
//
// One Submitter owns one sending identity. Nonce acquisition and sends are
// serialised, so concurrent submissions never consume the same nonce
// knowingly. Races with other writers of the same identity surface as
// ErrSequenceConflict and are retried with a fresh nonce.
type Submitter struct {
	log      zerolog.Logger
	metrics  module.AnchorMetrics
	ledger   ExternalLedger
	cfg      Config
	mu       sync.Mutex
	inFlight *atomic.Int64
	// refs holds the transaction reference of every id this submitter anchored
	refs *lru.Cache[ExternalID, string]
}

// sentRefsCapacity bounds the transaction references remembered per submitter.
const sentRefsCapacity = 4096

// NewSubmitter returns a submitter sending through ledger.
func NewSubmitter(log zerolog.Logger, collector module.AnchorMetrics, ledger ExternalLedger, cfg Config) (*Submitter, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	refs, err := lru.New[ExternalID, string](sentRefsCapacity)
	if err != nil {
		return nil, fmt.Errorf("could not create reference cache: %w", err)
	}
	return &Submitter{
		log:      log.With().Str("module", "anchor_submitter").Logger(),
		metrics:  collector,
		ledger:   ledger,
		cfg:      cfg,
		inFlight: atomic.NewInt64(0),
		refs:     refs,
	}, nil
}

// Submit commits root under id.
//
// Submitting a root that is already anchored is a no-op returning a receipt
// with AlreadyAnchored set. Expected errors during normal operations:
//   - *ExhaustedError if every attempt was rejected with ErrUnderpriced,
//     ErrSequenceConflict or ErrConnectivity.
//   - context.Canceled or context.DeadlineExceeded (wrapped) if ctx ended
//     between attempts.
func (s *Submitter) Submit(ctx context.Context, root hash.Hash, id ExternalID) (*Receipt, error) {
	start := time.Now()
	s.metrics.AnchorsInFlight(s.inFlight.Inc())
	defer func() {
		s.metrics.AnchorsInFlight(s.inFlight.Dec())
	}()

	log := s.log.With().
		Str("external_id", id.String()).
		Str("root", root.String()).
		Logger()

	receipt, err := s.submit(ctx, log, root, id)
	if err != nil {
		outcome := metrics.OutcomeFailed
		if IsExhaustedError(err) {
			outcome = metrics.OutcomeExhausted
		}
		s.metrics.AnchorSubmitted(outcome, time.Since(start))
		return nil, err
	}

	outcome := metrics.OutcomeSubmitted
	if receipt.AlreadyAnchored {
		outcome = metrics.OutcomeAlreadyAnchored
	}
	s.metrics.AnchorSubmitted(outcome, time.Since(start))

	log.Info().
		Str("tx", receipt.TxRef).
		Int("attempts", receipt.Attempts).
		Bool("already_anchored", receipt.AlreadyAnchored).
		Bool("confirmed", receipt.Confirmed).
		Msg("root anchored")

	return receipt, nil
}

func (s *Submitter) submit(ctx context.Context, log zerolog.Logger, root hash.Hash, id ExternalID) (*Receipt, error) {
	stored, found, err := s.anchored(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("anchor submission cancelled: %w", ctx.Err())
		}
		log.Warn().Err(err).Msg("could not read anchored root, submitting anyway")
	} else if found {
		if stored != root {
			log.Warn().Str("stored_root", stored.String()).Msg("external id holds a different root")
		}
		receipt := &Receipt{ID: id, Root: stored, AlreadyAnchored: true}
		s.existingRef(ctx, log, receipt)
		return receipt, nil
	}

	receipt, err := s.send(ctx, log, root, id)
	if err != nil {
		return nil, err
	}

	if receipt.AlreadyAnchored {
		s.refreshRoot(ctx, log, receipt)
		s.existingRef(ctx, log, receipt)
		return receipt, nil
	}

	s.refs.Add(id, receipt.TxRef)
	if !s.cfg.WaitForReceipt {
		return receipt, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()
	err = s.ledger.WaitConfirmed(waitCtx, receipt.TxRef)
	if errors.Is(err, ErrAlreadyAnchored) {
		log.Info().Str("tx", receipt.TxRef).Msg("anchor transaction reverted, root was anchored concurrently")
		receipt.AlreadyAnchored = true
		s.refs.Remove(id)
		s.refreshRoot(ctx, log, receipt)
		s.existingRef(ctx, log, receipt)
		return receipt, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not confirm anchor transaction %s: %w", receipt.TxRef, err)
	}
	receipt.Confirmed = true
	return receipt, nil
}

// anchored reads the root stored under id.
func (s *Submitter) anchored(ctx context.Context, id ExternalID) (hash.Hash, bool, error) {
	stored, err := s.ledger.ReadRoot(ctx, id)
	if err != nil {
		return hash.DummyHash, false, err
	}
	return stored, !stored.IsEmpty(), nil
}

// refreshRoot replaces the receipt root with the stored one, when readable.
func (s *Submitter) refreshRoot(ctx context.Context, log zerolog.Logger, receipt *Receipt) {
	stored, found, err := s.anchored(ctx, receipt.ID)
	if err != nil {
		log.Warn().Err(err).Msg("could not read anchored root")
		return
	}
	if !found {
		return
	}
	if stored != receipt.Root {
		log.Warn().Str("stored_root", stored.String()).Msg("external id holds a different root")
	}
	receipt.Root = stored
}

// existingRef sets the receipt reference to the transaction that anchored
// the id, first from the references this submitter sent, then from the
// external ledger. The receipt is left unchanged if neither knows it.
func (s *Submitter) existingRef(ctx context.Context, log zerolog.Logger, receipt *Receipt) {
	if ref, ok := s.refs.Get(receipt.ID); ok {
		receipt.TxRef = ref
		return
	}
	ref, err := s.ledger.AnchorRef(ctx, receipt.ID)
	if err != nil {
		log.Warn().Err(err).Msg("could not look up anchoring transaction")
		return
	}
	if ref == "" {
		log.Warn().Msg("anchoring transaction not found")
		return
	}
	receipt.TxRef = ref
	s.refs.Add(receipt.ID, ref)
}

// send runs the retry loop. It holds the identity lock for its whole duration.
func (s *Submitter) send(ctx context.Context, log zerolog.Logger, root hash.Hash, id ExternalID) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fees := s.initialFees(ctx, log)

	backoff := retry.NewExponential(s.cfg.BackoffBase)
	backoff = retry.WithCappedDuration(s.cfg.BackoffMax, backoff)
	backoff = retry.WithJitterPercent(s.cfg.BackoffJitter, backoff)
	backoff = retry.WithMaxRetries(s.cfg.MaxAttempts-1, backoff)

	var (
		receipt   *Receipt
		errs      *multierror.Error
		attempts  int
		conflicts int
		nonce     uint64
		keepNonce bool
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts++
		s.metrics.AnchorAttempt()

		if !keepNonce {
			next, err := s.ledger.PendingNonce(ctx)
			if err != nil {
				err = fmt.Errorf("could not get pending nonce: %w", err)
				errs = multierror.Append(errs, err)
				if errors.Is(err, ErrConnectivity) {
					log.Warn().Err(err).Int("attempt", attempts).Msg("external ledger unavailable, retrying")
					return retry.RetryableError(err)
				}
				return err
			}
			nonce = next
		}
		keepNonce = false

		attemptLog := log.With().
			Int("attempt", attempts).
			Uint64("nonce", nonce).
			Str("fees", fees.String()).
			Logger()

		txRef, err := s.ledger.SendAnchor(ctx, nonce, fees, id, root)
		switch {
		case err == nil:
			receipt = &Receipt{ID: id, Root: root, TxRef: txRef, Nonce: nonce, Fees: fees, Attempts: attempts}
			attemptLog.Debug().Str("tx", txRef).Msg("anchor transaction sent")
			return nil

		case errors.Is(err, ErrAlreadyAnchored):
			receipt = &Receipt{ID: id, Root: root, Nonce: nonce, Fees: fees, Attempts: attempts, AlreadyAnchored: true}
			attemptLog.Info().Msg("root already anchored")
			return nil

		case errors.Is(err, ErrUnderpriced):
			errs = multierror.Append(errs, err)
			fees = fees.Bump(s.cfg.FeeBumpNumerator, s.cfg.FeeBumpDenominator)
			keepNonce = true
			s.metrics.AnchorFeeBump()
			attemptLog.Warn().Err(err).Str("bumped_fees", fees.String()).Msg("anchor transaction underpriced, replacing with higher fees")
			return retry.RetryableError(err)

		case errors.Is(err, ErrSequenceConflict):
			errs = multierror.Append(errs, err)
			conflicts++
			s.metrics.AnchorSequenceConflict()
			if conflicts > 1 {
				attemptLog.Error().Err(err).Msg("repeated nonce conflict, giving up")
				return err
			}
			attemptLog.Warn().Err(err).Msg("nonce conflict, retrying with fresh nonce")
			return retry.RetryableError(err)

		case errors.Is(err, ErrConnectivity):
			errs = multierror.Append(errs, err)
			attemptLog.Warn().Err(err).Msg("external ledger unavailable, retrying")
			return retry.RetryableError(err)

		default:
			errs = multierror.Append(errs, err)
			return err
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("anchor submission cancelled after %d attempts: %w", attempts, ctx.Err())
		}
		if isRetryable(err) {
			return nil, newExhaustedError(attempts, errs)
		}
		return nil, fmt.Errorf("could not submit anchor: %w", err)
	}

	return receipt, nil
}

func (s *Submitter) initialFees(ctx context.Context, log zerolog.Logger) Fees {
	fees := s.cfg.InitialFees()
	if !s.cfg.UseSuggestedFees {
		return fees
	}
	suggested, err := s.ledger.SuggestFees(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not get suggested fees, using configured fees")
		return fees
	}
	return fees.Cover(suggested)
}
