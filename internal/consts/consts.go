package consts

const (
	// MaxDepositReferenceLength bounds the transaction signature accepted as a
	// deposit reference. Solana signatures are 87 or 88 base58 characters.
	MaxDepositReferenceLength = 128

	SolanaPublicKeyLength = 32

	// MaxAmountDigits matches the width of the amount columns, which is
	// enough for any 256-bit integer.
	MaxAmountDigits = 78

	DefaultPageLimit = 20
	MaxPageLimit     = 100

	RequestIDHeader = "X-Request-ID"

	SweeperJobName = "settlement_sweeper"
)
