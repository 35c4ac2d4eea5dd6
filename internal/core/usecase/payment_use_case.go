package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/metrics"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/internal/core/repository"
	"github.com/google/uuid"
)

const (
	reasonWalletNotFound      = "wallet not found"
	reasonInsufficientBalance = "insufficient balance"
	reasonWalletLocked        = "wallet locked"
	reasonBalanceLookup       = "balance lookup failed"
	reasonDeduction           = "deduction failed"
	reasonSettlement          = "settlement failed"
	reasonFinalize            = "finalization failed"
	reasonCancelled           = "request cancelled"

	DefaultListLimit = 20
	MaxListLimit     = 100
)

type PaymentUsecase interface {
	ProcessPayment(ctx context.Context, owner uuid.UUID, p models.Payment) (*models.Transaction, error)
	GetTransaction(ctx context.Context, owner uuid.UUID, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, owner uuid.UUID, limit int) ([]models.Transaction, error)
	ListWallets(ctx context.Context, owner uuid.UUID) ([]models.Wallet, error)
}

type paymentUsecase struct {
	ledger        repository.LedgerStore
	txlog         repository.TransactionLog
	settler       Settler
	settleTimeout time.Duration
	log           logger.Logger
	now           func() time.Time
}

func NewPaymentUsecase(ledger repository.LedgerStore, txlog repository.TransactionLog, settler Settler, settleTimeout time.Duration, log logger.Logger) PaymentUsecase {
	return &paymentUsecase{
		ledger:        ledger,
		txlog:         txlog,
		settler:       settler,
		settleTimeout: settleTimeout,
		log:           log,
		now:           time.Now,
	}
}

// ProcessPayment runs create, balance check, deduction, settlement and
// finalization in that order. Sends are the only kind that touch the ledger.
func (uc *paymentUsecase) ProcessPayment(ctx context.Context, owner uuid.UUID, p models.Payment) (*models.Transaction, error) {
	txn, err := uc.create(ctx, owner, p)
	if err != nil {
		return nil, err
	}

	if txn.Kind.Debits() {
		if err := uc.checkBalance(ctx, txn); err != nil {
			return nil, err
		}
		if err := uc.deduct(ctx, txn); err != nil {
			return nil, err
		}
	}

	// Money may have moved. The remaining steps must not be abandoned
	// because the caller went away.
	ctx = context.WithoutCancel(ctx)

	if err := uc.confirm(ctx, txn); err != nil {
		return nil, err
	}

	return uc.finalize(ctx, txn)
}

func (uc *paymentUsecase) create(ctx context.Context, owner uuid.UUID, p models.Payment) (*models.Transaction, error) {
	uc.log.Info("Starting payment",
		logger.UserField(owner),
		logger.StringField("type", string(p.Kind)),
		logger.StringField("amount", p.Amount.String()),
		logger.StringField("currency", string(p.Currency)))

	txn, err := models.NewTransaction(owner, p, uc.now())
	if err != nil {
		return nil, &StepError{Step: StepCreate, Err: ErrInternal, Cause: err}
	}

	if err := uc.txlog.Create(ctx, txn); err != nil {
		uc.log.Error("Failed to create transaction",
			logger.StringField("transaction_id", txn.ID),
			logger.ErrorField("error", err))
		return nil, &StepError{Step: StepCreate, TransactionID: txn.ID, Err: ErrInternal, Cause: err}
	}
	return txn, nil
}

func (uc *paymentUsecase) checkBalance(ctx context.Context, txn *models.Transaction) error {
	wallet, err := uc.ledger.GetWallet(ctx, txn.UserID, txn.FromWalletID)
	switch {
	case errors.Is(err, repository.ErrWalletNotFound):
		return uc.fail(ctx, txn, StepValidateBalance, ErrWalletNotFound, reasonWalletNotFound, err)
	case isCancellation(err):
		return uc.fail(ctx, txn, StepValidateBalance, ErrInternal, reasonCancelled, err)
	case err != nil:
		return uc.fail(ctx, txn, StepValidateBalance, ErrInternal, reasonBalanceLookup, err)
	}

	if wallet.Balance.LessThan(txn.Total()) {
		uc.log.Warn("Insufficient funds",
			logger.StringField("transaction_id", txn.ID),
			logger.StringField("balance", wallet.Balance.String()),
			logger.StringField("requested", txn.Total().String()))
		return uc.fail(ctx, txn, StepValidateBalance, ErrInsufficientBalance, reasonInsufficientBalance, nil)
	}
	return nil
}

func (uc *paymentUsecase) deduct(ctx context.Context, txn *models.Transaction) error {
	balance, err := uc.ledger.Deduct(ctx, txn.UserID, txn.FromWalletID, txn.Total())
	switch {
	case err == nil:
		uc.log.Info("Balance deducted",
			logger.StringField("transaction_id", txn.ID),
			logger.StringField("wallet_id", txn.FromWalletID.String()),
			logger.StringField("new_balance", balance.String()))
		return nil
	case errors.Is(err, repository.ErrInsufficientFunds):
		return uc.fail(ctx, txn, StepDeduct, ErrInsufficientBalance, reasonInsufficientBalance, err)
	case errors.Is(err, repository.ErrWalletNotFound):
		return uc.fail(ctx, txn, StepDeduct, ErrWalletNotFound, reasonWalletNotFound, err)
	case errors.Is(err, repository.ErrWalletLocked):
		return uc.fail(ctx, txn, StepDeduct, ErrWalletLocked, reasonWalletLocked, err)
	case isCancellation(err):
		// The store may or may not have committed; leave it pending for
		// reconciliation rather than record a guess.
		uc.log.Error("Deduction interrupted, transaction left pending",
			logger.StringField("transaction_id", txn.ID),
			logger.StringField("wallet_id", txn.FromWalletID.String()),
			logger.ErrorField("error", err))
		return &StepError{Step: StepDeduct, TransactionID: txn.ID, Err: ErrInternal, Cause: err}
	default:
		return uc.fail(ctx, txn, StepDeduct, ErrInternal, reasonDeduction, err)
	}
}

func (uc *paymentUsecase) confirm(ctx context.Context, txn *models.Transaction) error {
	settleCtx := ctx
	if uc.settleTimeout > 0 {
		var cancel context.CancelFunc
		settleCtx, cancel = context.WithTimeout(ctx, uc.settleTimeout)
		defer cancel()
	}

	err := uc.settler.Settle(settleCtx, *txn)
	if err == nil {
		return nil
	}

	if txn.Kind.Debits() {
		uc.reportCritical(txn, StepConfirm, err)
		return &StepError{Step: StepConfirm, TransactionID: txn.ID, Err: ErrCriticalInconsistency, Cause: err}
	}
	return uc.fail(ctx, txn, StepConfirm, ErrInternal, reasonSettlement, err)
}

func (uc *paymentUsecase) finalize(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	done := *txn
	if err := done.Complete(uc.now()); err != nil {
		return nil, &StepError{Step: StepFinalize, TransactionID: txn.ID, Err: ErrInternal, Cause: err}
	}

	if err := uc.txlog.Finalize(ctx, &done); err != nil {
		if txn.Kind.Debits() {
			uc.reportCritical(txn, StepFinalize, err)
			return nil, &StepError{Step: StepFinalize, TransactionID: txn.ID, Err: ErrCriticalInconsistency, Cause: err}
		}
		return nil, uc.fail(ctx, txn, StepFinalize, ErrInternal, reasonFinalize, err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(done.Kind), string(done.Status)).Inc()
	uc.log.Info("Payment completed",
		logger.StringField("transaction_id", done.ID),
		logger.StringField("type", string(done.Kind)),
		logger.StringField("amount", done.Amount.String()),
		logger.StringField("fee", done.Fee.String()))
	return &done, nil
}

// fail records the terminal failed state and returns the caller-facing
// error. A failure to record is logged and does not replace outcome.
func (uc *paymentUsecase) fail(ctx context.Context, txn *models.Transaction, step Step, outcome error, reason string, cause error) error {
	failed := *txn
	if err := failed.Fail(reason); err != nil {
		return &StepError{Step: step, TransactionID: txn.ID, Err: ErrInternal, Cause: err}
	}

	if err := uc.txlog.Finalize(context.WithoutCancel(ctx), &failed); err != nil {
		uc.log.Error("Failed to record transaction failure",
			logger.StringField("transaction_id", txn.ID),
			logger.StringField("reason", reason),
			logger.ErrorField("error", err))
	} else {
		metrics.TransactionsTotal.WithLabelValues(string(failed.Kind), string(failed.Status)).Inc()
	}

	fields := []logger.Field{
		logger.StringField("transaction_id", txn.ID),
		logger.StringField("step", string(step)),
		logger.StringField("reason", reason),
	}
	if cause != nil {
		fields = append(fields, logger.ErrorField("error", cause))
	}
	if errors.Is(outcome, ErrInternal) {
		uc.log.Error("Payment failed", fields...)
	} else {
		uc.log.Warn("Payment rejected", fields...)
	}

	return &StepError{Step: step, TransactionID: txn.ID, Err: outcome, Cause: cause}
}

func (uc *paymentUsecase) reportCritical(txn *models.Transaction, step Step, err error) {
	metrics.CriticalInconsistencies.Inc()
	uc.log.Error("CRITICAL: funds deducted but transaction not completed",
		logger.StringField("transaction_id", txn.ID),
		logger.StringField("step", string(step)),
		logger.UserField(txn.UserID),
		logger.StringField("wallet_id", txn.FromWalletID.String()),
		logger.StringField("amount", txn.Total().String()),
		logger.StringField("currency", string(txn.Currency)),
		logger.ErrorField("error", err))
}

func (uc *paymentUsecase) GetTransaction(ctx context.Context, owner uuid.UUID, id string) (*models.Transaction, error) {
	txn, err := uc.txlog.GetByID(ctx, owner, id)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

func (uc *paymentUsecase) ListTransactions(ctx context.Context, owner uuid.UUID, limit int) ([]models.Transaction, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	txns, err := uc.txlog.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

func (uc *paymentUsecase) ListWallets(ctx context.Context, owner uuid.UUID) ([]models.Wallet, error) {
	wallets, err := uc.ledger.ListWallets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
