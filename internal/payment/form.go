package payment

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/acaidelivery/checkout/internal/domain"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
	"github.com/acaidelivery/checkout/pkg/validator"
)

// CheckoutForm is what the customer typed on the checkout page.
type CheckoutForm struct {
	Name         string `json:"name" validate:"notblank"`
	CPF          string `json:"cpf" validate:"digits=11"`
	Email        string `json:"email" validate:"simpleemail"`
	ZipCode      string `json:"zipCode" validate:"digits=8"`
	Street       string `json:"street" validate:"notblank"`
	Number       string `json:"number" validate:"notblank"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood" validate:"notblank"`
	City         string `json:"city" validate:"notblank"`
	State        string `json:"state" validate:"notblank"`
	Phone        string `json:"phone" validate:"mindigits=10"`
}

// Address returns the delivery address part of the form.
func (f CheckoutForm) Address() domain.Address {
	return domain.Address{
		PostalCode:   f.ZipCode,
		Street:       f.Street,
		Number:       f.Number,
		Complement:   f.Complement,
		Neighborhood: f.Neighborhood,
		City:         f.City,
		State:        f.State,
		Phone:        f.Phone,
	}
}

// submission is validated as a whole: the form plus the quoted shipping cost.
type submission struct {
	CheckoutForm
	Shipping decimal.Decimal `json:"shipping" validate:"gt=0"`
}

// fieldMessages are the messages shown next to each invalid field.
var fieldMessages = map[string]string{
	"name":         "Nome é obrigatório",
	"email":        "Email inválido",
	"cpf":          "CPF inválido",
	"zipCode":      "CEP inválido",
	"street":       "Rua é obrigatória",
	"number":       "Número é obrigatório",
	"neighborhood": "Bairro é obrigatório",
	"city":         "Cidade é obrigatória",
	"state":        "Estado é obrigatório",
	"phone":        "Telefone inválido",
	"shipping":     "Calcule o frete antes de finalizar",
}

// Validate checks the form and that a shipping quote exists. Every failing
// field is reported at once.
func Validate(form CheckoutForm, shippingCost decimal.Decimal) error {
	err := validator.Validate(submission{CheckoutForm: form, Shipping: shippingCost})
	if err == nil {
		return nil
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return apperrors.Validation(valErr.FieldsWith(fieldMessages))
	}
	return apperrors.Internal(err)
}

// AmountInCentavos converts subtotal plus shipping to whole centavos.
func AmountInCentavos(subtotal, shipping decimal.Decimal) string {
	return subtotal.Add(shipping).Shift(2).Round(0).StringFixed(0)
}
