package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/application/facturacion"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// ErrorResponse es el cuerpo estándar de error de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CrearFacturaRequest captura una factura nueva.
type CrearFacturaRequest struct {
	ClienteID       string                `json:"cliente_id" validate:"required"`
	Serie           string                `json:"serie"`
	Folio           string                `json:"folio"`
	Moneda          string                `json:"moneda"`
	TipoCambio      decimal.Decimal       `json:"tipo_cambio"`
	FormaPago       string                `json:"forma_pago" validate:"required"`
	MetodoPago      string                `json:"metodo_pago" validate:"required,oneof=PUE PPD"`
	UsoCFDI         string                `json:"uso_cfdi"`
	CondicionesPago string                `json:"condiciones_pago"`
	Periodicidad    string                `json:"periodicidad"`
	Meses           string                `json:"meses"`
	Anio            int                   `json:"anio"`
	Detalles        []CrearDetalleRequest `json:"detalles" validate:"required,min=1,dive"`
}

// CrearDetalleRequest es una línea de concepto.
type CrearDetalleRequest struct {
	ClaveProdServ    string          `json:"clave_prod_serv" validate:"required"`
	NoIdentificacion string          `json:"no_identificacion"`
	ClaveUnidad      string          `json:"clave_unidad" validate:"required"`
	Unidad           string          `json:"unidad"`
	Descripcion      string          `json:"descripcion" validate:"required"`
	Cantidad         decimal.Decimal `json:"cantidad" validate:"required"`
	ValorUnitario    decimal.Decimal `json:"valor_unitario"`
	Descuento        decimal.Decimal `json:"descuento"`
	ObjetoImp        string          `json:"objeto_imp"`
	TasaIVA          decimal.Decimal `json:"tasa_iva"`
}

// RegistrarPagoRequest registra un pago (complemento Pagos 2.0) sobre una
// factura PPD timbrada.
type RegistrarPagoRequest struct {
	FechaPago time.Time       `json:"fecha_pago" validate:"required"`
	Monto     decimal.Decimal `json:"monto" validate:"required"`
	FormaPago string          `json:"forma_pago" validate:"required"`
}

// CancelarRequest lleva el motivo de cancelación (catálogo c_MotivoCancelacion).
type CancelarRequest struct {
	Motivo string `json:"motivo" validate:"required,oneof=01 02 03 04"`
}

// FacturaResponse es la vista pública de una factura.
type FacturaResponse struct {
	ID               string `json:"id"`
	Serie            string `json:"serie"`
	Folio            string `json:"folio"`
	FechaEmision     string `json:"fecha_emision"`
	Moneda           string `json:"moneda"`
	MetodoPago       string `json:"metodo_pago"`
	Subtotal         string `json:"subtotal"`
	Descuento        string `json:"descuento,omitempty"`
	Impuesto         string `json:"impuesto"`
	Total            string `json:"total"`
	EstadoTimbrado   string `json:"estado_timbrado"`
	UUID             string `json:"uuid,omitempty"`
	FechaTimbrado    string `json:"fecha_timbrado,omitempty"`
	Errores          string `json:"errores,omitempty"`
	IntentosTimbrado int    `json:"intentos_timbrado"`
}

// EstatusResponse es la respuesta de consulta de estatus ante el PAC.
type EstatusResponse struct {
	ID      string `json:"id"`
	UUID    string `json:"uuid"`
	Estatus string `json:"estatus"`
}

// PagoResponse es la vista pública de un pago registrado.
type PagoResponse struct {
	ID             string `json:"id"`
	FacturaID      string `json:"factura_id"`
	FechaPago      string `json:"fecha_pago"`
	Monto          string `json:"monto"`
	FormaPago      string `json:"forma_pago"`
	NumParcialidad int    `json:"num_parcialidad"`
	EstadoTimbrado string `json:"estado_timbrado"`
	UUID           string `json:"uuid,omitempty"`
}

func toFacturaResponse(f *entity.Factura) FacturaResponse {
	resp := FacturaResponse{
		ID:               f.ID,
		Serie:            f.Serie,
		Folio:            f.Folio,
		FechaEmision:     f.FechaEmision.Format(time.RFC3339),
		Moneda:           f.Moneda,
		MetodoPago:       f.MetodoPago,
		Subtotal:         f.Subtotal.StringFixed(2),
		Impuesto:         f.Impuesto.StringFixed(2),
		Total:            f.Total.StringFixed(2),
		EstadoTimbrado:   f.EstadoTimbrado,
		UUID:             f.UUID,
		Errores:          f.ErroresValidacion,
		IntentosTimbrado: f.IntentosTimbrado,
	}
	if f.Descuento.GreaterThan(decimal.Zero) {
		resp.Descuento = f.Descuento.StringFixed(2)
	}
	if f.FechaTimbrado != nil {
		resp.FechaTimbrado = f.FechaTimbrado.Format(time.RFC3339)
	}
	return resp
}

func toPagoResponse(p *entity.PagoFactura) PagoResponse {
	return PagoResponse{
		ID:             p.ID,
		FacturaID:      p.FacturaID,
		FechaPago:      p.FechaPago.Format("2006-01-02"),
		Monto:          p.MontoPago.StringFixed(2),
		FormaPago:      p.FormaPago,
		NumParcialidad: p.NumParcialidad,
		EstadoTimbrado: p.EstadoTimbrado,
		UUID:           p.UUID,
	}
}

func toCrearFacturaInput(in *CrearFacturaRequest) *facturacion.CrearFacturaInput {
	out := &facturacion.CrearFacturaInput{
		ClienteID:       in.ClienteID,
		Serie:           in.Serie,
		Folio:           in.Folio,
		Moneda:          in.Moneda,
		TipoCambio:      in.TipoCambio,
		FormaPago:       in.FormaPago,
		MetodoPago:      in.MetodoPago,
		UsoCFDI:         in.UsoCFDI,
		CondicionesPago: in.CondicionesPago,
		Periodicidad:    in.Periodicidad,
		Meses:           in.Meses,
		Anio:            in.Anio,
	}
	for _, d := range in.Detalles {
		out.Detalles = append(out.Detalles, facturacion.CrearDetalleInput{
			ClaveProdServ:    d.ClaveProdServ,
			NoIdentificacion: d.NoIdentificacion,
			ClaveUnidad:      d.ClaveUnidad,
			Unidad:           d.Unidad,
			Descripcion:      d.Descripcion,
			Cantidad:         d.Cantidad,
			ValorUnitario:    d.ValorUnitario,
			Descuento:        d.Descuento,
			ObjetoImp:        d.ObjetoImp,
			TasaIVA:          d.TasaIVA,
		})
	}
	return out
}
