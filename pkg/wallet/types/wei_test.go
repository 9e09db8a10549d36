package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWei(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    uint64
		wantErr bool
	}{
		{"decimal", "1500000000", 1_500_000_000, false},
		{"hex", "0x59682f00", 1_500_000_000, false},
		{"zero hex", "0x0", 0, false},
		{"garbage", "12ab", 0, true},
		{"negative", "-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWei(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			v, ok := got.Uint64()
			assert.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestWeiArithmetic(t *testing.T) {
	a := NewWei(100)
	b := NewWei(150)

	_, ok := a.CheckedSub(b)
	assert.False(t, ok, "100 - 150 must underflow")
	assert.True(t, a.SaturatingSub(b).IsZero())

	diff, ok := b.CheckedSub(a)
	assert.True(t, ok)
	assert.Equal(t, NewWei(50), diff)

	prod, ok := NewWei(7).CheckedMulUint64(21_000)
	assert.True(t, ok)
	assert.Equal(t, NewWei(147_000), prod)

	bumped, ok := NewWei(1000).MulDivUint64(110, 100)
	assert.True(t, ok)
	assert.Equal(t, NewWei(1100), bumped)

	max := MustParseWei("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	_, ok = max.CheckedAdd(NewWei(1))
	assert.False(t, ok)

	assert.Equal(t, b, MaxWei(a, b))
	assert.Equal(t, b, MaxWei(b, a))
}

func TestWeiFromBig(t *testing.T) {
	w, err := WeiFromBig(big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, NewWei(42), w)

	_, err = WeiFromBig(big.NewInt(-1))
	assert.Error(t, err)

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = WeiFromBig(huge)
	assert.ErrorIs(t, err, ErrWeiOverflow)
}

func TestWeiJSONIsDecimalString(t *testing.T) {
	price := TransactionPrice{
		GasLimit:             DefaultGasLimit,
		MaxFeePerGas:         MustParseWei("33000000000"),
		MaxPriorityFeePerGas: NewWei(1_500_000_000),
	}

	data, err := json.Marshal(price)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gas_limit":21000,"max_fee_per_gas":"33000000000","max_priority_fee_per_gas":"1500000000"}`, string(data))

	var decoded TransactionPrice
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, price, decoded)

	fee, ok := price.MaxTransactionFee()
	assert.True(t, ok)
	assert.Equal(t, "693000000000000", fee.String())
}
