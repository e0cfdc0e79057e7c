package model

import (
	"strings"
	"time"
)

type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CPF          string    `json:"cpf"`
	Phone        string    `json:"phone"`
	BirthDate    time.Time `json:"birth_date"`
	CEP          string    `json:"cep"`
	Address      string    `json:"address"`
	Number       string    `json:"number"`
	Complement   string    `json:"complement"`
	Neighborhood string    `json:"neighborhood"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DigitsOnly strips everything but 0-9, CPF is stored that way.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
