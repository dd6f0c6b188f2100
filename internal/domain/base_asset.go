package domain

// BaseToken is the quote-side asset of a swap: the wrapped native token or
// one of the two major stablecoins. Swaps between two base assets are
// currency conversions, not trades, and are rejected by the normalizer.
type BaseToken string

const (
	BaseSOL  BaseToken = "SOL"
	BaseUSDC BaseToken = "USDC"
	BaseUSDT BaseToken = "USDT"
)

// Well-known mint addresses.
const (
	WSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

var baseTokenByMint = map[string]BaseToken{
	WSOLMint: BaseSOL,
	USDCMint: BaseUSDC,
	USDTMint: BaseUSDT,
}

// BaseTokenForMint returns the base asset a mint belongs to, if any.
// Native lamport flows are the caller's concern; they fold into BaseSOL.
func BaseTokenForMint(mint string) (BaseToken, bool) {
	b, ok := baseTokenByMint[mint]
	return b, ok
}

// IsBaseMint reports whether the mint is on the base-asset allow-list.
func IsBaseMint(mint string) bool {
	_, ok := baseTokenByMint[mint]
	return ok
}
