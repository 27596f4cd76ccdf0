// Package errs defines the error taxonomy shared by every component of the
// node. It mirrors the RuleError/ErrorCode pattern used throughout
// daglabs-btcd's consensus engine (blockdag.RuleError): a small stringer
// enum plus a single error type that carries a human-readable description.
package errs

import "fmt"

// ErrorCode identifies a specific kind of validation or operational failure.
type ErrorCode int

// Error kinds produced by validation and operational failures across the
// node.
const (
	ErrMalformedInput ErrorCode = iota
	ErrSignatureInvalid
	ErrUnknownInput
	ErrDoubleSpend
	ErrInsufficientFunds
	ErrAmountOutOfRange
	ErrInvalidStructure
	ErrOrphanBlock
	ErrBadDifficulty
	ErrBadReward
	ErrPoWInvalid
	ErrBlockTooLarge
	ErrStale
	ErrSideChainAccepted
	ErrMempoolFull
	ErrSyncInProgress
	ErrPeerUnauthenticated
	ErrPeerBanned
	ErrRateLimited
	ErrStorageUnavailable
	ErrTimeout
	ErrInternal
)

var errorCodeStrings = map[ErrorCode]string{
	ErrMalformedInput:      "MalformedInput",
	ErrSignatureInvalid:    "SignatureInvalid",
	ErrUnknownInput:        "UnknownInput",
	ErrDoubleSpend:         "DoubleSpend",
	ErrInsufficientFunds:   "InsufficientFunds",
	ErrAmountOutOfRange:    "AmountOutOfRange",
	ErrInvalidStructure:    "InvalidStructure",
	ErrOrphanBlock:         "OrphanBlock",
	ErrBadDifficulty:       "BadDifficulty",
	ErrBadReward:           "BadReward",
	ErrPoWInvalid:          "PoWInvalid",
	ErrBlockTooLarge:       "BlockTooLarge",
	ErrStale:               "Stale",
	ErrSideChainAccepted:   "SideChainAccepted",
	ErrMempoolFull:         "MempoolFull",
	ErrSyncInProgress:      "SyncInProgress",
	ErrPeerUnauthenticated: "PeerUnauthenticated",
	ErrPeerBanned:          "PeerBanned",
	ErrRateLimited:         "RateLimited",
	ErrStorageUnavailable:  "StorageUnavailable",
	ErrTimeout:             "Timeout",
	ErrInternal:            "Internal",
}

// String implements the Stringer interface for ErrorCode.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// NodeError is the canonical error type returned from every validation and
// consensus path in the node.
type NodeError struct {
	Code        ErrorCode
	Description string
}

// Error implements the error interface.
func (e NodeError) Error() string {
	return e.Description
}

// New builds a NodeError with the given code and a formatted description.
func New(code ErrorCode, format string, args ...interface{}) error {
	return NodeError{Code: code, Description: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err if it is (or wraps) a NodeError,
// returning ErrInternal otherwise.
func CodeOf(err error) ErrorCode {
	var nerr NodeError
	if ok := As(err, &nerr); ok {
		return nerr.Code
	}
	return ErrInternal
}

// As is a tiny local shim over errors.As so callers don't need two imports
// for the common case of unwrapping a NodeError.
func As(err error, target *NodeError) bool {
	for err != nil {
		if ne, ok := err.(NodeError); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps an ErrorCode to the status the "user-visible
// behaviour" rule requires the (out-of-scope) framing layer to return.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrRateLimited:
		return 429
	case ErrPeerUnauthenticated, ErrPeerBanned:
		return 401
	case ErrStorageUnavailable, ErrInternal:
		return 500
	case ErrTimeout:
		return 504
	default:
		return 400
	}
}
