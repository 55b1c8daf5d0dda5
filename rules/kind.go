package rules

// Kind names the closed set of configurable rule types. Config referring to
// any other name fails startup; there is no dynamic rule loading.
type Kind string

const (
	KindMaxPosition      Kind = "max_position"
	KindMaxTotalPosition Kind = "max_total_position"
	KindDailyLoss        Kind = "daily_loss"
	KindDailyProfit      Kind = "daily_profit"
	KindUnrealizedLoss   Kind = "unrealized_loss"
	KindUnrealizedProfit Kind = "unrealized_profit"
	KindTradeFrequency   Kind = "trade_frequency"
	KindLossCooldown     Kind = "loss_cooldown"
	KindStopLossGrace    Kind = "stop_loss_grace"
	KindSessionHours     Kind = "session_hours"
	KindAuthGuard        Kind = "auth_guard"
	KindSymbolBlock      Kind = "symbol_block"
	KindTrailingStop     Kind = "trailing_stop"
)

// ValidKinds lists every recognized rule kind, in documentation order.
func ValidKinds() []Kind {
	return []Kind{
		KindMaxPosition,
		KindMaxTotalPosition,
		KindDailyLoss,
		KindDailyProfit,
		KindUnrealizedLoss,
		KindUnrealizedProfit,
		KindTradeFrequency,
		KindLossCooldown,
		KindStopLossGrace,
		KindSessionHours,
		KindAuthGuard,
		KindSymbolBlock,
		KindTrailingStop,
	}
}
