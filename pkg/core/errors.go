package core

import "errors"

var (
	// ErrInvalidAmount rejects a transaction whose amount is not a positive finite number
	ErrInvalidAmount = errors.New("invalid transaction amount")

	// ErrInvalidSignature rejects a transaction whose signature fails verification
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrUnknownSigner rejects a signed transaction whose sender has no registered key
	ErrUnknownSigner = errors.New("no registered key for signer")

	// ErrInvalidProof rejects a transaction whose attached proof fails verification
	ErrInvalidProof = errors.New("invalid transaction proof")

	// ErrMiningCancelled reports proof of work abandoned before a valid nonce was found
	ErrMiningCancelled = errors.New("mining cancelled")

	// ErrChainCorruption reports a hash mismatch or broken link in the stored chain
	ErrChainCorruption = errors.New("chain corruption detected")
)
