package dto

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Valores em unidades mínimas da denominação, como string decimal (u64)
type DepositRequest struct {
	Account      string `json:"account" validate:"required,max=128"`
	Denomination string `json:"denomination" validate:"required,max=32"`
	Amount       string `json:"amount" validate:"required,numeric"`
	ExternalRef  string `json:"external_ref,omitempty" validate:"max=128"` // opcional p/ idempotência simples
}

func (r *DepositRequest) Validate() error { return validate.Struct(r) }
