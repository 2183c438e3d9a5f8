package web3

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ParseEther converts a decimal ether amount such as "0.12" to wei. Amounts
// with more than 18 decimal places or a negative sign are rejected.
func ParseEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, errors.New("金额不能为空")
	}
	value, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("无法解析金额: %s", amount)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("金额不能为负数: %s", amount)
	}
	value.Mul(value, new(big.Rat).SetInt(weiPerEther))
	if !value.IsInt() {
		return nil, fmt.Errorf("金额精度超过 18 位小数: %s", amount)
	}
	return new(big.Int).Set(value.Num()), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(wei)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fraction := strings.TrimRight(fmt.Sprintf("%018s", frac.String()), "0")
	return sign + whole.String() + "." + fraction
}
