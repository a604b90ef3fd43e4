package stellar

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBuildPaymentURI_NativeAsset(t *testing.T) {
	uri := BuildPaymentURI("web+stellar", PaymentURIParams{
		Destination: "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX",
		Amount:      decimal.RequireFromString("42.5"),
		AssetCode:   "XLM",
	})

	assert.Equal(t,
		"web+stellar:pay?destination=GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX&amount=42.5",
		uri,
	)
}

func TestBuildPaymentURI_IssuedAsset(t *testing.T) {
	uri := BuildPaymentURI("web+stellar", PaymentURIParams{
		Destination: "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX",
		Amount:      decimal.NewFromInt(100),
		AssetCode:   "USDC",
		AssetIssuer: "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN",
	})

	assert.Contains(t, uri, "&asset_code=USDC")
	assert.Contains(t, uri, "&asset_issuer=GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN")
}

func TestBuildPaymentURI_MemoEscapedAndCapped(t *testing.T) {
	uri := BuildPaymentURI("web+stellar", PaymentURIParams{
		Destination: "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX",
		Amount:      decimal.NewFromInt(10),
		AssetCode:   "XLM",
		Memo:        "dinner & drinks at the harbor with everyone",
	})

	assert.Contains(t, uri, "&memo=dinner+%26+drinks+at+the+harb")
	assert.Contains(t, uri, "&memo_type=MEMO_TEXT")
	assert.NotContains(t, uri, "everyone")
}

func TestBuildPaymentURI_NoMemo(t *testing.T) {
	uri := BuildPaymentURI("web+stellar", PaymentURIParams{
		Destination: "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX",
		Amount:      decimal.NewFromInt(1),
		AssetCode:   "XLM",
	})

	assert.NotContains(t, uri, "memo")
}
