package auth

import "errors"

var (
	NoUserErr              = errors.New("no user in response")
	IDTokenVerificationErr = errors.New("google id token rejected")
)
