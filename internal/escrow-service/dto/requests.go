package dto

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Valores monetários trafegam como string decimal (u64 não cabe em number do JSON)

type CreateBetRequest struct {
	Question          string    `json:"question"`
	ExpiryTime        time.Time `json:"expiry_time" validate:"required"`
	TokenDenomination string    `json:"token_denomination" validate:"required,max=32"`
}

func (r *CreateBetRequest) Validate() error { return validate.Struct(r) }

type PlaceStakeRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Choice *bool  `json:"choice" validate:"required"`
}

func (r *PlaceStakeRequest) Validate() error { return validate.Struct(r) }

type ResolveRequest struct {
	Outcome *bool `json:"outcome" validate:"required"`
}

func (r *ResolveRequest) Validate() error { return validate.Struct(r) }
