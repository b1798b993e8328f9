package utils

import "net/http"

// ResponseCode business response code
type ResponseCode int

// Response codes
const (
	CodeOK ResponseCode = 0

	// Request errors
	CodeInvalidParam ResponseCode = 40001
	CodeUnauthorized ResponseCode = 40101
	CodeForbidden    ResponseCode = 40301
	CodeNotFound     ResponseCode = 40401
	CodeConflict     ResponseCode = 40901

	// System errors
	CodeInternalError ResponseCode = 50001
	CodeDatabaseError ResponseCode = 50002
	CodeRedisError    ResponseCode = 50003
)

// HTTPStatus maps a response code to an HTTP status code
func HTTPStatus(code ResponseCode) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
