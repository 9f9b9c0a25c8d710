package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/models"
	"github.com/tiendaluna/pos_backend/utils"
)

// ReservationSweeper periodically expires apartados whose hold window has
// passed, so reserved stock flows back to the sales floor without anyone
// touching the POS. A redis advisory lock keeps concurrent instances from
// sweeping at the same time; losing the lock just skips the tick.
type ReservationSweeper struct {
	Ledger    *models.InventoryLedger
	Logger    *logrus.Logger
	SweeperID string

	PollInterval time.Duration
	LockTimeout  time.Duration
}

const sweeperLockKey = "lock:reservation_sweep"

func NewReservationSweeper(ledger *models.InventoryLedger, logger *logrus.Logger) *ReservationSweeper {
	return &ReservationSweeper{
		Ledger:       ledger,
		Logger:       logger,
		SweeperID:    uuid.NewString(),
		PollInterval: 60 * time.Second,
		LockTimeout:  30 * time.Second,
	}
}

func (s *ReservationSweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.PollInterval):
		}
	}
}

func (s *ReservationSweeper) sweepOnce(ctx context.Context) {
	if s.Ledger == nil {
		return
	}

	release, err := utils.AdvisoryLock(ctx, sweeperLockKey, s.LockTimeout, "reservationSweeper.go", "sweepOnce")
	if err != nil {
		// Another instance holds the lock.
		return
	}
	defer release()

	expired, err := s.Ledger.ExpireStaleReservations(ctx)
	if err != nil {
		config.LogError(s.Logger, "reservationSweeper.go", "sweepOnce", "expire stale reservations", s.SweeperID, err)
		return
	}
	if expired > 0 {
		s.Logger.WithFields(logrus.Fields{
			"sweeper_id": s.SweeperID,
			"expired":    expired,
		}).Info("expired stale reservations")
	}
}
