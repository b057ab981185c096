package entity

import "time"

// Cliente es el receptor del CFDI.
type Cliente struct {
	ID            string
	EmisorID      string
	RazonSocial   string
	RFC           string
	CodigoPostal  string // DomicilioFiscalReceptor
	RegimenFiscal string
	UsoCFDI       string // Uso por defecto; la factura puede sobreescribirlo
	Email         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
