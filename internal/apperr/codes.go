package apperr

import "net/http"

// Code is a stable machine-readable error code of the form 0xXYZ, where X
// is the category.
type Code string

// Category groups codes that share an HTTP status.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryValidation     Category = "validation"
	CategoryStore          Category = "store"
	CategoryParsing        Category = "parsing"
	CategoryInternal       Category = "internal"
	CategoryNotFound       Category = "not_found"
	CategoryRateLimit      Category = "rate_limit"
)

const (
	Unauthorized       Code = "0x001"
	InvalidCredentials Code = "0x002"
	SessionExpired     Code = "0x003"
	SessionInvalid     Code = "0x004"

	MissingFields            Code = "0x100"
	InvalidUsername          Code = "0x101"
	InvalidPassword          Code = "0x102"
	InvalidPrefix            Code = "0x103"
	SQLInjectionDetected     Code = "0x104"
	InvalidFieldType         Code = "0x105"
	InvalidAmountValue       Code = "0x106"
	InvalidLengthValue       Code = "0x107"
	UsernameValidationFailed Code = "0x108"
	PasswordValidationFailed Code = "0x109"
	PrefixValidationFailed   Code = "0x10A"
	InvalidEmail             Code = "0x10B"
	PasswordTooLong          Code = "0x10C"
	InvalidKeyType           Code = "0x10D"

	SQLQueryFailed           Code = "0x200"
	DatabaseConnectionFailed Code = "0x201"
	InsertFailed             Code = "0x202"
	UpdateFailed             Code = "0x203"
	DeleteFailed             Code = "0x204"
	QueryTimeout             Code = "0x205"

	JSONParseError       Code = "0x300"
	InvalidContentType   Code = "0x301"
	InvalidRequestFormat Code = "0x302"
	RequestBodyTooLarge  Code = "0x303"

	UnknownError       Code = "0x400"
	ConfigurationError Code = "0x401"
	EncryptionError    Code = "0x402"
	DecryptionError    Code = "0x403"

	NotFound         Code = "0x500"
	ResourceNotFound Code = "0x501"
	UserNotFound     Code = "0x502"
	KeyNotFound      Code = "0x503"

	RateLimitExceeded Code = "0x600"
	QuotaExceeded     Code = "0x601"
	TooManyRequests   Code = "0x602"
)

var descriptions = map[Code]string{
	Unauthorized:       "Unauthorized access",
	InvalidCredentials: "Invalid credentials provided",
	SessionExpired:     "Session has expired",
	SessionInvalid:     "Invalid session token",

	MissingFields:            "Required fields are missing",
	InvalidUsername:          "Username format is invalid",
	InvalidPassword:          "Password format is invalid",
	InvalidPrefix:            "Prefix format is invalid",
	SQLInjectionDetected:     "SQL injection attempt detected",
	InvalidFieldType:         "Field has invalid type",
	InvalidAmountValue:       "Amount value is out of range",
	InvalidLengthValue:       "Length value is out of range",
	UsernameValidationFailed: "Username validation failed",
	PasswordValidationFailed: "Password validation failed",
	PrefixValidationFailed:   "Prefix validation failed",
	InvalidEmail:             "Email format is invalid",
	PasswordTooLong:          "Password exceeds maximum length",
	InvalidKeyType:           "Key type is invalid",

	SQLQueryFailed:           "SQL query execution failed",
	DatabaseConnectionFailed: "Database connection failed",
	InsertFailed:             "Failed to insert record",
	UpdateFailed:             "Failed to update record",
	DeleteFailed:             "Failed to delete record",
	QueryTimeout:             "Query execution timed out",

	JSONParseError:       "Failed to parse JSON request",
	InvalidContentType:   "Invalid content type",
	InvalidRequestFormat: "Request format is invalid",
	RequestBodyTooLarge:  "Request body exceeds size limit",

	UnknownError:       "Unknown internal error",
	ConfigurationError: "Server configuration error",
	EncryptionError:    "Encryption operation failed",
	DecryptionError:    "Decryption operation failed",

	NotFound:         "Resource not found",
	ResourceNotFound: "Requested resource does not exist",
	UserNotFound:     "User not found",
	KeyNotFound:      "Key not found",

	RateLimitExceeded: "Rate limit exceeded",
	QuotaExceeded:     "Quota limit exceeded",
	TooManyRequests:   "Too many requests",
}

var categoryStatus = map[Category]int{
	CategoryAuthentication: http.StatusUnauthorized,
	CategoryValidation:     http.StatusBadRequest,
	CategoryStore:          http.StatusBadGateway,
	CategoryParsing:        http.StatusBadRequest,
	CategoryInternal:       http.StatusInternalServerError,
	CategoryNotFound:       http.StatusNotFound,
	CategoryRateLimit:      http.StatusTooManyRequests,
}

// Description returns the human-readable text registered for c.
func (c Code) Description() string {
	if d, ok := descriptions[c]; ok {
		return d
	}
	return "Unknown error"
}

// Category derives the category from the leading digit of the code.
func (c Code) Category() Category {
	if len(c) != 5 || c[:2] != "0x" {
		return CategoryInternal
	}
	switch c[2] {
	case '0':
		return CategoryAuthentication
	case '1':
		return CategoryValidation
	case '2':
		return CategoryStore
	case '3':
		return CategoryParsing
	case '4':
		return CategoryInternal
	case '5':
		return CategoryNotFound
	case '6':
		return CategoryRateLimit
	}
	return CategoryInternal
}

// Status is the HTTP status of the code's category.
func (c Code) Status() int {
	return categoryStatus[c.Category()]
}

// genericMessages are shown instead of internal messages when debug is off.
var genericMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
	http.StatusBadGateway:          "Bad Gateway",
	http.StatusServiceUnavailable:  "Service Unavailable",
}

func GenericMessage(status int) string {
	if m, ok := genericMessages[status]; ok {
		return m
	}
	return "An error occurred"
}
