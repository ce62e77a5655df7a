package clabe

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// ============================================================================
// CLABE (Clave Bancaria Estandarizada)
// ============================================================================
//
// 18 digits:
//
//	bank(3) | region(3) | account(11) | control(1)
//
// The control digit is a weighted checksum over the first 17 digits with the
// repeating weights 3,7,1. Each product contributes only its last digit.
//
// ============================================================================

const (
	// Length is the size of a full CLABE code.
	Length = 18
	// PrefixLength is the number of digits covered by the control digit.
	PrefixLength = 17

	accountDigits = 11

	// DefaultBankCode is the STP participant code used for internally issued accounts.
	DefaultBankCode = "646"
	// DefaultRegionCode is the generic region used for online accounts.
	DefaultRegionCode = "100"
)

var (
	ErrInvalidFormat        = errors.New("clabe: must be exactly 18 digits")
	ErrControlDigitMismatch = errors.New("clabe: control digit mismatch")
	ErrInvalidPrefixSegment = errors.New("clabe: bank and region codes must be 3 digits each")
)

var weights = [PrefixLength]int{3, 7, 1, 3, 7, 1, 3, 7, 1, 3, 7, 1, 3, 7, 1, 3, 7}

// randomSource is swapped in tests.
var randomSource io.Reader = rand.Reader

// ComputeControlDigit returns the control digit for the 17 digit prefix.
func ComputeControlDigit(prefix17 string) (int, error) {
	if len(prefix17) != PrefixLength || !isDigits(prefix17) {
		return 0, ErrInvalidFormat
	}

	sum := 0
	for i := 0; i < PrefixLength; i++ {
		sum += (int(prefix17[i]-'0') * weights[i]) % 10
	}
	return (10 - sum%10) % 10, nil
}

// Check reports why code is not a valid CLABE, or nil when it is.
func Check(code string) error {
	if len(code) != Length || !isDigits(code) {
		return ErrInvalidFormat
	}

	want, err := ComputeControlDigit(code[:PrefixLength])
	if err != nil {
		return err
	}
	if int(code[PrefixLength]-'0') != want {
		return ErrControlDigitMismatch
	}
	return nil
}

// Validate reports whether code is an 18 digit CLABE with a correct control digit.
func Validate(code string) bool {
	return Check(code) == nil
}

// Repair replaces the last digit of an 18 digit code with the correct control digit.
func Repair(code string) (string, error) {
	if len(code) != Length || !isDigits(code) {
		return "", ErrInvalidFormat
	}
	digit, err := ComputeControlDigit(code[:PrefixLength])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", code[:PrefixLength], digit), nil
}

// Generate builds a new CLABE from the bank and region codes plus 11 random
// account digits. The result always passes Validate.
func Generate(bankCode, regionCode string) (string, error) {
	if len(bankCode) != 3 || len(regionCode) != 3 || !isDigits(bankCode) || !isDigits(regionCode) {
		return "", ErrInvalidPrefixSegment
	}

	buf := make([]byte, 0, Length)
	buf = append(buf, bankCode...)
	buf = append(buf, regionCode...)

	ten := big.NewInt(10)
	for i := 0; i < accountDigits; i++ {
		n, err := rand.Int(randomSource, ten)
		if err != nil {
			return "", fmt.Errorf("clabe: random account digits: %w", err)
		}
		buf = append(buf, byte('0'+n.Int64()))
	}

	digit, err := ComputeControlDigit(string(buf))
	if err != nil {
		return "", err
	}
	buf = append(buf, byte('0'+digit))
	return string(buf), nil
}

// GenerateDefault generates a CLABE under the internal bank and region codes.
func GenerateDefault() (string, error) {
	return Generate(DefaultBankCode, DefaultRegionCode)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
