package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/ledger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError writes a structured error response.
func WriteError(c *fiber.Ctx, status int, title, message string, details map[string]any) error {
	return c.Status(status).JSON(ErrorResponse{
		Code:    strconv.Itoa(status),
		Title:   title,
		Message: message,
		Details: details,
	})
}

// ErrorHandler renders ledger errors with their HTTP status and any
// structured context the error carries. It is installed as the fiber
// ErrorHandler so handlers can return domain errors unchanged.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			fiberErr     *fiber.Error
			insufficient *ledger.InsufficientFundsError
			unavailable  *ledger.AccountNotAvailableError
			loanState    *ledger.InvalidLoanStateError
		)

		switch {
		case errors.As(err, &fiberErr):
			return WriteError(c, fiberErr.Code, http.StatusText(fiberErr.Code), fiberErr.Message, nil)
		case errors.Is(err, ErrValidationFailed), errors.Is(err, ErrBodyParseFailed):
			return WriteError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		case errors.Is(err, ErrUnsupportedContentType):
			return WriteError(c, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), nil)
		case errors.Is(err, ledger.ErrInvalidAmount):
			return WriteError(c, http.StatusBadRequest, "invalid_amount", err.Error(), nil)
		case errors.Is(err, ledger.ErrInvalidLoanTerms):
			return WriteError(c, http.StatusBadRequest, "invalid_loan_terms", err.Error(), nil)
		case errors.As(err, &insufficient):
			return WriteError(c, http.StatusBadRequest, "insufficient_funds", "insufficient balance", map[string]any{
				"current_balance":  insufficient.Balance,
				"requested_amount": insufficient.Requested,
			})
		case errors.As(err, &unavailable):
			return WriteError(c, http.StatusNotFound, "account_not_available", "account not found or inactive", map[string]any{
				"account_id": unavailable.AccountID,
				"reason":     unavailable.Reason,
			})
		case errors.Is(err, ledger.ErrAccountNotAvailable):
			return WriteError(c, http.StatusNotFound, "account_not_available", "account not found or inactive", nil)
		case errors.Is(err, ledger.ErrLoanNotFound):
			return WriteError(c, http.StatusNotFound, "loan_not_found", err.Error(), nil)
		case errors.Is(err, ledger.ErrTransactionNotFound):
			return WriteError(c, http.StatusNotFound, "transaction_not_found", err.Error(), nil)
		case errors.As(err, &loanState):
			return WriteError(c, http.StatusConflict, "invalid_loan_state", err.Error(), map[string]any{
				"loan_id": loanState.LoanID,
				"status":  loanState.Status,
			})
		case errors.Is(err, ledger.ErrInvalidLoanState):
			return WriteError(c, http.StatusConflict, "invalid_loan_state", err.Error(), nil)
		case errors.Is(err, ledger.ErrAccountExists):
			return WriteError(c, http.StatusConflict, "account_exists", err.Error(), nil)
		case errors.Is(err, ledger.ErrInvalidStatusChange), errors.Is(err, ledger.ErrAccountNotEmpty):
			return WriteError(c, http.StatusConflict, "invalid_status_change", err.Error(), nil)
		case ledger.IsRetryable(err):
			c.Set(fiber.HeaderRetryAfter, "1")
			logger.Warn("transient failure", slog.String("path", c.Path()), slog.Any("error", err))
			return WriteError(c, http.StatusServiceUnavailable, "service_unavailable", "temporarily unavailable, retry the request", nil)
		default:
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
			return WriteError(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
		}
	}
}
