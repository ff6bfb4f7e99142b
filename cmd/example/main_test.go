package main

import (
	"context"
	"testing"
	"time"

	"github.com/Deepreo/cronkit"
	"github.com/Deepreo/cronkit/modules/auth"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func TestVerifyTOTPEndpoint(t *testing.T) {
	code, err := totp.GenerateCodeCustom(testSecret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsEight,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	settings := &auth.TOTPConfig{Digits: 8, Skew: 1, Period: 30}
	endpoint := verifyTOTP(func() *auth.TOTPConfig { return settings })

	res, err := endpoint(context.Background(), totpRequest{Secret: testSecret, Code: code})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	// Six digit defaults reject an eight digit code.
	endpoint = verifyTOTP(func() *auth.TOTPConfig { return nil })
	res, err = endpoint(context.Background(), totpRequest{Secret: testSecret, Code: code})
	require.NoError(t, err)
	assert.False(t, res.Valid)

	assert.Error(t, totpRequest{Secret: testSecret}.Validate())
}

func TestHealthCheckWithoutDependencies(t *testing.T) {
	state := &cronkit.AppState{Name: "example"}
	assert.NoError(t, healthCheck(context.Background(), state))
	assert.NoError(t, cleanup(context.Background(), state))
}
