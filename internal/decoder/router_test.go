package decoder

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	router    = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	weth      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	now       = time.Unix(1_700_000_000, 0)
)

func newDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := New(Config{Router: router, WETH: weth})
	require.NoError(t, err)
	return d
}

func pack(t *testing.T, method string, args ...interface{}) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(RouterABI))
	require.NoError(t, err)
	data, err := parsed.Pack(method, args...)
	require.NoError(t, err)
	return data
}

func swapTx(to *common.Address, value *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       200_000,
		To:        to,
		Value:     value,
		Data:      data,
	})
}

func ethForTokens(t *testing.T, minOut int64, path []common.Address, deadline int64) []byte {
	return pack(t, "swapExactETHForTokens", big.NewInt(minOut), path, recipient, big.NewInt(deadline))
}

func TestDecodeSwapExactETHForTokens(t *testing.T) {
	d := newDecoder(t)
	data := ethForTokens(t, 1_900, []common.Address{weth, usdc}, now.Unix()+60)
	tx := swapTx(&router, big.NewInt(1e18), data)

	intent, ok := d.Decode(tx, now)
	require.True(t, ok)
	assert.Equal(t, tx.Hash(), intent.TxHash)
	assert.Equal(t, []common.Address{weth, usdc}, intent.Path)
	assert.Equal(t, uint64(1_900), intent.MinOut.Uint64())
	assert.Equal(t, uint64(1e18), intent.AmountIn.Uint64())
	assert.Equal(t, recipient, intent.Recipient)
	assert.Equal(t, usdc, intent.Token())
}

func TestDecodeDeadlineBoundary(t *testing.T) {
	d := newDecoder(t)
	path := []common.Address{weth, usdc}

	_, ok := d.Decode(swapTx(&router, big.NewInt(1e18), ethForTokens(t, 1, path, now.Unix())), now)
	assert.True(t, ok, "deadline equal to now is still live")

	_, ok = d.Decode(swapTx(&router, big.NewInt(1e18), ethForTokens(t, 1, path, now.Unix()-1)), now)
	assert.False(t, ok, "deadline in the past is expired")

	intent, ok := d.Decode(swapTx(&router, big.NewInt(1e18), pack(t, "swapExactETHForTokens",
		big.NewInt(1), path, recipient, math.MaxBig256)), now)
	require.True(t, ok, "max uint256 deadline never expires")
	assert.Equal(t, ^uint64(0), intent.Deadline)
	assert.False(t, intent.Expired(now.Add(100*365*24*time.Hour)))
}

func TestDecodeNotApplicable(t *testing.T) {
	d := newDecoder(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	live := now.Unix() + 60
	valid := ethForTokens(t, 1, []common.Address{weth, usdc}, live)

	tests := []struct {
		name string
		tx   *types.Transaction
	}{
		{"contract creation", swapTx(nil, big.NewInt(1e18), valid)},
		{"other destination", swapTx(&other, big.NewInt(1e18), valid)},
		{"empty calldata", swapTx(&router, big.NewInt(1e18), nil)},
		{"short calldata", swapTx(&router, big.NewInt(1e18), []byte{0x7f, 0xf3})},
		{"unknown selector", swapTx(&router, big.NewInt(1e18), []byte{0xde, 0xad, 0xbe, 0xef})},
		{"truncated arguments", swapTx(&router, big.NewInt(1e18), valid[:40])},
		{"path not starting at weth", swapTx(&router, big.NewInt(1e18),
			ethForTokens(t, 1, []common.Address{usdc, weth}, live))},
		{"single token path", swapTx(&router, big.NewInt(1e18),
			ethForTokens(t, 1, []common.Address{weth}, live))},
		{"zero value", swapTx(&router, big.NewInt(0), valid)},
		{"other router method", swapTx(&router, big.NewInt(0),
			pack(t, "swapExactTokensForETH", big.NewInt(1), big.NewInt(1), []common.Address{usdc, weth}, recipient, big.NewInt(live)))},
		{"exact-output method", swapTx(&router, big.NewInt(1e18),
			pack(t, "swapETHForExactTokens", big.NewInt(1), []common.Address{weth, usdc}, recipient, big.NewInt(live)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, ok := d.Decode(tt.tx, now)
			assert.False(t, ok)
			assert.Nil(t, intent)
		})
	}
}

func TestDecodeRouterAddressCaseInsensitive(t *testing.T) {
	lower := common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	d := newDecoder(t)
	_, ok := d.Decode(swapTx(&lower, big.NewInt(1e18), ethForTokens(t, 1, []common.Address{weth, usdc}, now.Unix())), now)
	assert.True(t, ok)
}
