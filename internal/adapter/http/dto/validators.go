package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.:]+$`)
	moneyRe      = regexp.MustCompile(`^\d{1,10}(\.\d{1,2})?$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("money", validateMoney)
		_ = v.RegisterValidation("billing_cycle", validateBillingCycle)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, dot and colon.
// Operation ids like "escrow:hold:<uuid>" must round-trip through it.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateMoney accepts positive amounts with at most two decimal places.
// Zero is rejected; every exposed operation moves real money.
func validateMoney(fl validator.FieldLevel) bool {
	return isMoney(fl.Field().String())
}

func isMoney(s string) bool {
	if !moneyRe.MatchString(s) {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.IsPositive()
}

// validateBillingCycle accepts the four supported cycles.
func validateBillingCycle(fl validator.FieldLevel) bool {
	return isBillingCycle(fl.Field().String())
}

func isBillingCycle(s string) bool {
	switch s {
	case "WEEKLY", "MONTHLY", "QUARTERLY", "YEARLY":
		return true
	}
	return false
}

// Amount parses a money string that already passed the money tag. The zero
// decimal comes back for anything else, and the service layer's own amount
// validation rejects it.
func Amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				s := sanitize(elem.String())
				elem.SetString(s)
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
