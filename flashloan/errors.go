package flashloan

import "errors"

var (
	// ErrNotOwner carries the exact revert reason callers match on.
	ErrNotOwner              = errors.New("caller is not the owner!")
	ErrUnauthorizedCallback  = errors.New("flashloan: unauthorized callback")
	ErrInvalidRequest        = errors.New("flashloan: invalid request")
	ErrInsufficientRepayment = errors.New("flashloan: insufficient repayment")
	ErrNotSettled            = errors.New("flashloan: vault returned without settling")
	ErrZeroOwner             = errors.New("flashloan: owner is the zero address")
	ErrZeroVault             = errors.New("flashloan: vault is the zero address")
	ErrNotLender             = errors.New("flashloan: vault does not implement the lender interface")
)
