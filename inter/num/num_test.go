package num

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUnifiedNumCheckedOps verifies that every checked operation reports
// overflow or underflow instead of wrapping.
func TestUnifiedNumCheckedOps(t *testing.T) {
	require := require.New(t)

	// Case 1: plain arithmetic.
	{
		sum, err := UnifiedNum(150).CheckedAdd(50)
		require.NoError(err)
		require.Equal(UnifiedNum(200), sum)

		diff, err := UnifiedNum(150).CheckedSub(50)
		require.NoError(err)
		require.Equal(UnifiedNum(100), diff)

		prod, err := UnifiedNum(100_000_000).CheckedMul(50)
		require.NoError(err)
		quo, err := prod.CheckedDiv(1000)
		require.NoError(err)
		require.Equal(UnifiedNum(5_000_000), quo)
	}

	// Case 2: failures.
	{
		_, err := UnifiedNum(math.MaxUint64).CheckedAdd(1)
		require.Error(err)
		var arith *ArithmeticError
		require.ErrorAs(err, &arith)
		require.Equal("add", arith.Op)

		_, err = UnifiedNum(1).CheckedSub(2)
		require.Error(err)

		_, err = UnifiedNum(math.MaxUint64).CheckedMul(2)
		require.Error(err)

		_, err = UnifiedNum(1).CheckedDiv(0)
		require.Error(err)
	}

	// Case 3: Sum is fallible.
	{
		total, err := Sum(1, 2, 3)
		require.NoError(err)
		require.Equal(UnifiedNum(6), total)

		_, err = Sum(math.MaxUint64, 1)
		require.Error(err)
	}
}

// TestPrecisionRescaling checks flooring when converting to a lower token
// precision and exact round trips when no flooring happens.
func TestPrecisionRescaling(t *testing.T) {
	tests := []struct {
		name      string
		value     UnifiedNum
		precision uint8
		want      string
	}{
		{"same precision", 123_456_789, 8, "123456789"},
		{"higher precision", 1, 18, "10000000000"},
		{"lower precision floors", 123_456_789, 6, "1234567"},
		{"lower precision to zero", 99, 6, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.value.ToPrecision(tt.precision)
			require.Equal(t, tt.want, got.String())
		})
	}

	t.Run("round trip at higher precision is exact", func(t *testing.T) {
		for _, v := range []UnifiedNum{0, 1, 150, 123_456_789, math.MaxUint64} {
			back, err := FromPrecision(v.ToPrecision(18), 18)
			require.NoError(t, err)
			require.Equal(t, v, back)
		}
	})

	t.Run("flooring only reduces magnitude", func(t *testing.T) {
		v := UnifiedNum(123_456_789)
		back, err := FromPrecision(v.ToPrecision(6), 6)
		require.NoError(t, err)
		require.Equal(t, UnifiedNum(123_456_700), back)
		require.LessOrEqual(t, uint64(back), uint64(v))
	})

	t.Run("overflow on from precision", func(t *testing.T) {
		huge := NewBigNum(math.MaxUint64).Mul(NewBigNum(10))
		_, err := FromPrecision(huge, 8)
		require.ErrorIs(t, err, ErrOverflow)
	})
}

// TestBigNum covers the checked BigNum operations.
func TestBigNum(t *testing.T) {
	require := require.New(t)

	a, err := BigNumFromString("1000000000000000000000")
	require.NoError(err)
	b := NewBigNum(1)

	diff, err := a.CheckedSub(b)
	require.NoError(err)
	require.Equal("999999999999999999999", diff.String())

	_, err = b.CheckedSub(a)
	require.Error(err)

	quo, err := a.Div(NewBigNum(7))
	require.NoError(err)
	require.Equal("142857142857142857142", quo.String())

	_, err = a.Div(BigNum{})
	require.Error(err)

	_, err = BigNumFromString("-1")
	require.Error(err)

	var zero BigNum
	require.True(zero.IsZero())
	require.Equal("0", zero.String())
}

// TestJSON verifies that both number types travel as decimal strings.
func TestJSON(t *testing.T) {
	require := require.New(t)

	data, err := json.Marshal(struct {
		U UnifiedNum `json:"u"`
		B BigNum     `json:"b"`
	}{U: 150, B: NewBigNum(42)})
	require.NoError(err)
	require.JSONEq(`{"u":"150","b":"42"}`, string(data))

	var u UnifiedNum
	require.NoError(json.Unmarshal([]byte(`"100000000"`), &u))
	require.Equal(One, u)
	require.Equal("1.00000000", u.ToFloatString())
	require.Error(json.Unmarshal([]byte(`"abc"`), &u))
}
