package handlers

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return strongPassword(fl.Field().String())
		})
		validate = v
	})
	return validate
}

const passwordSpecials = "@$!%*?&#"

// strongPassword wants a lower, an upper, a digit and one of @$!%*?&#.
func strongPassword(pw string) bool {
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return lower && upper && digit && special
}

// messages keyed by "<field>.<tag>", falling back to the tag alone.
var fieldMessages = map[string]string{
	"email.required":          "Please provide a valid email address",
	"email.email":             "Please provide a valid email address",
	"password.required":       "Password is required",
	"password.min":            "Password must be at least 8 characters long",
	"password.strongpassword": "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character",
	"message.required":        "Message must be between 1 and 5000 characters",
	"message.max":             "Message must be between 1 and 5000 characters",
	"conversationId.ulid":     "Conversation ID is invalid",
	"title.max":               "Title must be at most 255 characters",
}

func validateStruct(v any) []common.FieldError {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []common.FieldError{{Field: "body", Message: err.Error()}}
	}

	out := make([]common.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value (" + fe.Tag() + ")"
		}
		out = append(out, common.FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
