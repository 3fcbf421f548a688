package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/keygate/internal/apperr"
)

type registerBody struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,password"`
	Prefix   string `json:"prefix" validate:"required,prefix"`
}

type addKeyBody struct {
	Amount *float64 `json:"amount" validate:"required,gte=1,lte=30"`
	Length *float64 `json:"length" validate:"required,gte=1,lte=30"`
}

func ptr(f float64) *float64 { return &f }

func codeOf(t *testing.T, err error) apperr.Code {
	t.Helper()
	require.Error(t, err)
	return apperr.From(err).Code
}

func TestStruct_Register(t *testing.T) {
	assert.NoError(t, Struct(registerBody{Username: "alice", Password: "s3cret", Prefix: "acme_1"}))

	assert.Equal(t, apperr.MissingFields, codeOf(t, Struct(registerBody{Username: "alice"})))
	assert.Equal(t, apperr.UsernameValidationFailed, codeOf(t, Struct(registerBody{Username: "1alice", Password: "s3cret", Prefix: "acme"})))
	assert.Equal(t, apperr.PasswordValidationFailed, codeOf(t, Struct(registerBody{Username: "alice", Password: "password", Prefix: "acme"})))
	assert.Equal(t, apperr.PrefixValidationFailed, codeOf(t, Struct(registerBody{Username: "alice", Password: "s3cret", Prefix: "a-b"})))
}

func TestStruct_MissingFieldsListed(t *testing.T) {
	err := Struct(registerBody{})
	e := apperr.From(err)
	assert.Equal(t, apperr.MissingFields, e.Code)
	assert.Equal(t, []string{"username", "password", "prefix"}, e.Details["fields"])
}

func TestStruct_AddKeyRanges(t *testing.T) {
	assert.NoError(t, Struct(addKeyBody{Amount: ptr(1), Length: ptr(30)}))
	assert.Equal(t, apperr.InvalidAmountValue, codeOf(t, Struct(addKeyBody{Amount: ptr(31), Length: ptr(1)})))
	assert.Equal(t, apperr.InvalidAmountValue, codeOf(t, Struct(addKeyBody{Amount: ptr(0), Length: ptr(1)})))
	assert.Equal(t, apperr.InvalidLengthValue, codeOf(t, Struct(addKeyBody{Amount: ptr(5), Length: ptr(-2)})))
	assert.Equal(t, apperr.MissingFields, codeOf(t, Struct(addKeyBody{Amount: ptr(5)})))
}

func TestUsernameProblems(t *testing.T) {
	assert.Empty(t, UsernameProblems("bob_the-builder"))
	assert.Contains(t, UsernameProblems("ab"), "Username must be at least 3 characters")
	assert.Contains(t, UsernameProblems("_bob"), "Username must start with a letter")
	assert.Contains(t, UsernameProblems("bob!"), "Username can only contain letters, numbers, underscore and dash")
}

func TestPasswordProblems(t *testing.T) {
	assert.Empty(t, PasswordProblems("abc123"))
	assert.Contains(t, PasswordProblems("abcdef"), "Password must contain at least one number")
	assert.Contains(t, PasswordProblems("123456"), "Password is too weak, please choose a stronger password")
}

func TestPrefixProblems(t *testing.T) {
	assert.Empty(t, PrefixProblems("acme_01"))
	assert.NotEmpty(t, PrefixProblems("a"))
	assert.NotEmpty(t, PrefixProblems("this_prefix_is_way_too_long"))
}
