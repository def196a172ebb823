package nats

import "time"

// SwapBuildEvent is published to "swaps.{user_address}" after every
// successful build. Consumers get the full fee breakdown plus the message
// token so they can verify the attested message independently.
type SwapBuildEvent struct {
	BuildID     string `json:"build_id"`
	UserAddress string `json:"user_address"`
	SourceMint  string `json:"source_mint"`
	Amount      int64  `json:"amount"`

	// Quote summary
	OutAmount string `json:"out_amount"`

	// Fee breakdown in lamports (network, rent, platform) and source-asset
	// base units (burn, transfer).
	NetworkFee  uint64 `json:"network_fee"`
	RentFloat   uint64 `json:"rent_float"`
	PlatformFee uint64 `json:"platform_fee"`
	BurnFee     uint64 `json:"burn_fee"`
	TransferFee uint64 `json:"transfer_fee"`

	MessageToken string    `json:"message_token"`
	BuiltAt      time.Time `json:"built_at"`
}
