package errs

import "errors"

// Sentinel business-error codes. Each is compared with errors.Is against the
// error returned by domain/validator code, then translated into a typed,
// HTTP-mappable error by Translate. Numeric codes are stable identifiers,
// not meant to be parsed.
var (
	ErrBadRequest                   = errors.New("SETTLD-0001")
	ErrMissingFieldsInRequest       = errors.New("SETTLD-0002")
	ErrUnexpectedFieldsInRequest    = errors.New("SETTLD-0003")
	ErrEntityNotFound               = errors.New("SETTLD-0004")
	ErrPrevChainHashMismatch        = errors.New("SETTLD-0005")
	ErrChainBreak                   = errors.New("SETTLD-0006")
	ErrPayloadHashMismatch          = errors.New("SETTLD-0007")
	ErrSignatureInvalid             = errors.New("SETTLD-0008")
	ErrUnknownSignerKey             = errors.New("SETTLD-0009")
	ErrSignatureRequired            = errors.New("SETTLD-0010")
	ErrProofRequired                = errors.New("SETTLD-0011")
	ErrProofStale                   = errors.New("SETTLD-0012")
	ErrProofInsufficient            = errors.New("SETTLD-0013")
	ErrSettlementProofRefRequired   = errors.New("SETTLD-0014")
	ErrMonthClosed                  = errors.New("SETTLD-0015")
	ErrIdempotencyKeyConflict       = errors.New("SETTLD-0016")
	ErrRateLimited                  = errors.New("SETTLD-0017")
	ErrTenantQuotaExceeded          = errors.New("SETTLD-0018")
	ErrInsufficientEscrow           = errors.New("SETTLD-0019")
	ErrNegativeWalletBalance        = errors.New("SETTLD-0020")
	ErrEscrowLedgerMismatch         = errors.New("SETTLD-0021")
	ErrIllegalTransition            = errors.New("SETTLD-0022")
	ErrRobotUnavailable             = errors.New("SETTLD-0023")
	ErrOperatorUnavailable          = errors.New("SETTLD-0024")
	ErrReservationOverlap           = errors.New("SETTLD-0025")
	ErrEvidenceContentTypeForbidden = errors.New("SETTLD-0026")
	ErrEvidenceTooLarge             = errors.New("SETTLD-0027")
	ErrEvidenceQuotaExceeded        = errors.New("SETTLD-0028")
	ErrContractHashMismatch         = errors.New("SETTLD-0029")
	ErrDuplicateDeliveryDedupeKey   = errors.New("SETTLD-0030")
	ErrMaintenanceAlreadyRunning    = errors.New("SETTLD-0031")
	ErrFinanceExportBlocked         = errors.New("SETTLD-0032")
	ErrForbidden                    = errors.New("SETTLD-0033")
	ErrUnauthorized                 = errors.New("SETTLD-0034")
	ErrPreconditionRequired         = errors.New("SETTLD-0035")
	ErrInternal                     = errors.New("SETTLD-0036")
)
