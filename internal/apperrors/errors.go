package apperrors

import (
	"errors"
)

var (
	// Login rejected by backend or failed on the way. Message is safe to show to the user
	ErrAuthenticationFailed = errors.New("invalid credentials")

	ErrSessionExpired     = errors.New("session expired")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrProfileUnavailable = errors.New("user profile unavailable")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// Token is not a three part token or its payload has no valid 'exp' claim
	ErrInvalidToken = errors.New("invalid token")

	ErrCredentialNotFound = errors.New("credential not found")

	ErrRouteNotFound     = errors.New("route not found")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrUploadNotCSV      = errors.New("upload must be a csv file")
	ErrUploadEmpty       = errors.New("upload file is empty")
	ErrRequestValidation = errors.New("request validation failed")
)
