package api

import (
	"context"
	"encoding/base64"
	"net/http"

	"happy/encryption"
)

// authRequest is the challenge/response login payload. The server
// verifies the signature against the public key and mints a bearer
// token; the secret itself never leaves the client.
type authRequest struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

// Authenticate proves possession of the root secret and returns a bearer
// token for subsequent calls
func Authenticate(ctx context.Context, serverURL string, secret []byte) (string, error) {
	response, err := encryption.SignChallenge(secret)
	if err != nil {
		return "", err
	}

	client := NewClient(serverURL, "")
	var out struct {
		Token string `json:"token"`
	}
	req := authRequest{
		Challenge: base64.StdEncoding.EncodeToString(response.Challenge),
		Signature: base64.StdEncoding.EncodeToString(response.Signature),
		PublicKey: base64.StdEncoding.EncodeToString(response.PublicKey),
	}
	if err := client.do(ctx, http.MethodPost, "/v1/auth/challenge", nil, req, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}
