package auth

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/Deepreo/cronkit/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPOptions mirror the usual authenticator app parameters.
type TOTPOptions struct {
	Issuer string
	Digits int
	Skew   uint
	Period uint
}

func (o TOTPOptions) digits() otp.Digits {
	if o.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func (o TOTPOptions) period() uint {
	if o.Period == 0 {
		return 30
	}
	return o.Period
}

// VerifyTOTP checks code against a base32 secret at the current time,
// allowing Skew periods of drift each way. Codes are SHA1 based.
func VerifyTOTP(secret, code string, opts TOTPOptions) (bool, error) {
	return verifyTOTPAt(secret, code, time.Now(), opts)
}

func verifyTOTPAt(secret, code string, at time.Time, opts TOTPOptions) (bool, error) {
	if _, err := decodeSecret(secret); err != nil {
		return false, err
	}
	ok, err := totp.ValidateCustom(code, normalizeSecret(secret), at, totp.ValidateOpts{
		Period:    opts.period(),
		Skew:      opts.Skew,
		Digits:    opts.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// A malformed code is a failed verification, not an outage.
		if errors.Is(otp.ErrValidateInputInvalidLength, err) {
			return false, nil
		}
		return false, errors.ValidationError(fmt.Errorf("totp verify: %w", err))
	}
	return ok, nil
}

// GenerateTOTPURL returns the otpauth:// provisioning URL for account,
// signed with SHA256.
func GenerateTOTPURL(account, secret string, opts TOTPOptions) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      opts.Issuer,
		AccountName: account,
		Period:      opts.period(),
		Digits:      opts.digits(),
		Secret:      raw,
		Algorithm:   otp.AlgorithmSHA256,
	})
	if err != nil {
		return "", errors.ValidationError(fmt.Errorf("totp url: %w", err))
	}
	return key.URL(), nil
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
}

func decodeSecret(secret string) ([]byte, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalizeSecret(secret))
	if err != nil || len(raw) == 0 {
		return nil, errors.ValidationError(fmt.Errorf("totp secret is not valid base32"))
	}
	return raw, nil
}
