package core

import (
	"fmt"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
)

// PromilleDivisor is the denominator of validator fees.
const PromilleDivisor num.UnifiedNum = 1000

// FeeError reports a fee computation that could not be carried out.
type FeeError struct {
	Validator string
	Err       error
}

func (e *FeeError) Error() string {
	return fmt.Sprintf("fee of %s: %v", e.Validator, e.Err)
}

func (e *FeeError) Unwrap() error { return e.Err }

// ValidatorFee is floor(payout * fee / 1000). The multiplication is checked.
func ValidatorFee(payout num.UnifiedNum, v inter.ValidatorDesc) (num.UnifiedNum, error) {
	product, err := payout.CheckedMul(v.Fee)
	if err != nil {
		return 0, &FeeError{Validator: v.ID.String(), Err: err}
	}
	return product / PromilleDivisor, nil
}

// ApplyFees derives post-fee balances: every earner entry of pre is reduced by
// the fees of all validators on that entry, and each validator's fee address
// is credited with its share. Spenders are untouched, so the totals are
// conserved. pre is not modified.
func ApplyFees(pre balances.Checked, validators []inter.ValidatorDesc) (balances.Checked, error) {
	var feeSum num.UnifiedNum
	for _, v := range validators {
		next, err := feeSum.CheckedAdd(v.Fee)
		if err != nil || next > PromilleDivisor {
			return balances.Checked{}, &FeeError{Validator: v.ID.String(), Err: fmt.Errorf("combined fees exceed %d promille", PromilleDivisor)}
		}
		feeSum = next
	}

	earners := balances.Map{}
	credits := balances.Map{}
	for _, addr := range pre.Earners().Addresses() {
		payout := pre.Earners()[addr]
		var deducted num.UnifiedNum
		for _, v := range validators {
			fee, err := ValidatorFee(payout, v)
			if err != nil {
				return balances.Checked{}, err
			}
			if fee == 0 {
				continue
			}
			if err := credits.Add(v.FeeAddress(), fee); err != nil {
				return balances.Checked{}, &FeeError{Validator: v.ID.String(), Err: err}
			}
			// bounded by payout since combined fees are at most 1000 promille
			deducted += fee
		}
		earners[addr] = payout - deducted
	}

	post := balances.FromMaps(earners, pre.Spenders())
	for _, addr := range credits.Addresses() {
		if err := post.AddEarner(addr, credits[addr]); err != nil {
			return balances.Checked{}, err
		}
	}
	return post.Check()
}
