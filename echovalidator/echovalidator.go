// Package echovalidator sets up github.com/go-playground/validator/v10 as
// the Echo validator, reporting failures by JSON field name.
package echovalidator

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CustomValidator adapts a validator.Validate to echo.Validator.
type CustomValidator struct {
	validator *validator.Validate
}

// New returns a validator whose errors name fields by their JSON tag.
func New() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate returns a 400 HTTPError listing "field: rule" for each failure.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s: %s", fe.Field(), fe.Tag())
		}
	}
	return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
}

// Validator exposes the underlying instance for custom rules.
func (cv *CustomValidator) Validator() *validator.Validate {
	return cv.validator
}

// Setup installs a new CustomValidator on e.
func Setup(e *echo.Echo) *CustomValidator {
	cv := New()
	e.Validator = cv
	return cv
}
