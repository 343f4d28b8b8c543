package dto

import (
	"reflect"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var registerOnce sync.Once

// RegisterValidators installs the decimal binding rules on gin's validator:
//
//	decimal_gt0   value > 0
//	decimal_gte0  value >= 0
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		// Decimals are validated through their string form; validator does
		// not run field tags on struct kinds.
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})

		_ = v.RegisterValidation("decimal_gt0", decimalRule(func(d decimal.Decimal) bool { return d.IsPositive() }))
		_ = v.RegisterValidation("decimal_gte0", decimalRule(func(d decimal.Decimal) bool { return !d.IsNegative() }))
	})
}

func decimalRule(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ok(d)
	}
}
