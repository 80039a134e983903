package model

import "github.com/shopspring/decimal"

// TradePatch is the partial update sent to the remote trade service after a
// local state change. Nil fields are left untouched.
type TradePatch struct {
	Status      *TradeStatus         `json:"status,omitempty"`
	ClosePrice  *float64             `json:"close_price,omitempty"`
	CloseReason *CloseReason         `json:"close_reason,omitempty"`
	RealizedPnL *decimal.NullDecimal `json:"realized_pnl,omitempty"`
	StopLoss    *float64             `json:"stop_loss,omitempty"`
	Target      *float64             `json:"target_exit,omitempty"`
}

// ClosePatch describes a trade's closure.
func ClosePatch(t Trade) TradePatch {
	status := t.Status
	reason := t.CloseReason
	pnl := t.RealizedPnL
	return TradePatch{
		Status:      &status,
		ClosePrice:  clonePtr(t.ClosePrice),
		CloseReason: &reason,
		RealizedPnL: &pnl,
	}
}
