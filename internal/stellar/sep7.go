package stellar

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentURIParams describes a SEP-0007 pay operation for wallet deep-linking.
type PaymentURIParams struct {
	Destination string
	Amount      decimal.Decimal
	AssetCode   string
	AssetIssuer string
	Memo        string
}

// BuildPaymentURI renders a SEP-0007 payment URI:
//
//	scheme:pay?destination=<address>&amount=<decimal>[&asset_code=<code>&asset_issuer=<issuer>][&memo=<text>&memo_type=MEMO_TEXT]
//
// Native-asset transfers omit asset_code and asset_issuer.
func BuildPaymentURI(scheme string, p PaymentURIParams) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString(":pay?destination=")
	b.WriteString(url.QueryEscape(p.Destination))
	b.WriteString("&amount=")
	b.WriteString(p.Amount.String())

	if p.AssetCode != "" && p.AssetCode != "XLM" {
		b.WriteString("&asset_code=")
		b.WriteString(url.QueryEscape(p.AssetCode))
		if p.AssetIssuer != "" {
			b.WriteString("&asset_issuer=")
			b.WriteString(url.QueryEscape(p.AssetIssuer))
		}
	}

	if p.Memo != "" {
		memo := p.Memo
		// MEMO_TEXT is capped at 28 bytes on-chain.
		if len(memo) > 28 {
			memo = memo[:28]
		}
		b.WriteString("&memo=")
		b.WriteString(url.QueryEscape(memo))
		b.WriteString("&memo_type=MEMO_TEXT")
	}

	return b.String()
}
