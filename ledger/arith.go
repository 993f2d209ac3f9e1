package ledger

import (
	"math/bits"

	"github.com/ferreirogomes/cotas/apperrors"
)

func mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, apperrors.Newf(apperrors.ErrOverflow, "estouro em %d × %d", a, b)
	}
	return lo, nil
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, apperrors.Newf(apperrors.ErrOverflow, "estouro em %d + %d", a, b)
	}
	return sum, nil
}

// productAtLeast informa se a × b ≥ c × d, comparando os produtos em 128 bits.
func productAtLeast(a, b, c, d uint64) bool {
	hi1, lo1 := bits.Mul64(a, b)
	hi2, lo2 := bits.Mul64(c, d)
	return hi1 > hi2 || (hi1 == hi2 && lo1 >= lo2)
}

// mulDiv calcula a × b / d sem estourar o produto intermediário. Exige a ≤ d.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}
