package sat

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	pkgsat "github.com/directiva-agricola/facturacion-api/pkg/sat"
)

// Tolerancia aritmética del Anexo 20 al recalcular importes y totales.
var toleranciaImporte = decimal.NewFromFloat(0.01)

// Ventana de vigencia de la fecha de emisión: no más de 72 horas hacia atrás
// ni adelantada más allá de la tolerancia de reloj.
const (
	ventanaEmision  = 72 * time.Hour
	toleranciaReloj = 5 * time.Minute
)

// ValidarComprobante aplica todas las validaciones estructurales y aritméticas
// previas al timbrado y devuelve el conjunto completo de problemas (no corta
// en el primero). El error resultante envuelve domain.ErrValidacion.
func ValidarComprobante(f *entity.Factura, e *entity.Emisor, c *entity.Cliente, detalles []*entity.FacturaDetalle, ahora time.Time) error {
	if f == nil {
		return fmt.Errorf("%w: factura nula", domain.ErrValidacion)
	}
	var errs []error

	// ── Emisor ────────────────────────────────────────────────────────────────
	if e == nil {
		errs = append(errs, fmt.Errorf("emisor nulo"))
	} else {
		if !pkgsat.EsRFCValido(e.RFC) {
			errs = append(errs, fmt.Errorf("RFC del emisor inválido: %q", e.RFC))
		}
		if !pkgsat.ValidRegimenesFiscales[e.RegimenFiscal] {
			errs = append(errs, fmt.Errorf("régimen fiscal del emisor inválido: %q", e.RegimenFiscal))
		}
		if len(e.CodigoPostal) != 5 {
			errs = append(errs, fmt.Errorf("código postal del emisor inválido: %q", e.CodigoPostal))
		}
	}

	// ── Receptor ──────────────────────────────────────────────────────────────
	if c == nil {
		errs = append(errs, fmt.Errorf("receptor nulo"))
	} else {
		if !pkgsat.EsRFCValido(c.RFC) {
			errs = append(errs, fmt.Errorf("RFC del receptor inválido: %q", c.RFC))
		}
		if !pkgsat.ValidRegimenesFiscales[c.RegimenFiscal] {
			errs = append(errs, fmt.Errorf("régimen fiscal del receptor inválido: %q", c.RegimenFiscal))
		}
		if len(c.CodigoPostal) != 5 {
			errs = append(errs, fmt.Errorf("domicilio fiscal del receptor inválido: %q", c.CodigoPostal))
		}
	}

	// ── Comprobante ───────────────────────────────────────────────────────────
	if f.Folio == "" {
		errs = append(errs, fmt.Errorf("folio requerido"))
	}
	if !pkgsat.ValidUsosCFDI[f.UsoCFDI] {
		errs = append(errs, fmt.Errorf("uso CFDI inválido: %q", f.UsoCFDI))
	}
	if !pkgsat.ValidFormasPago[f.FormaPago] {
		errs = append(errs, fmt.Errorf("forma de pago inválida: %q", f.FormaPago))
	}
	if !pkgsat.ValidMetodosPago[f.MetodoPago] {
		errs = append(errs, fmt.Errorf("método de pago inválido: %q", f.MetodoPago))
	}
	if !pkgsat.ValidMonedas[f.Moneda] {
		errs = append(errs, fmt.Errorf("moneda inválida: %q", f.Moneda))
	}
	if !pkgsat.ValidExportacion[f.Exportacion] {
		errs = append(errs, fmt.Errorf("exportación inválida: %q", f.Exportacion))
	}
	if f.Moneda == "MXN" {
		if !f.TipoCambio.Equal(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Errorf("tipo de cambio debe ser 1.0000 para MXN, se recibió %s", f.TipoCambio.StringFixed(4)))
		}
	} else if !f.TipoCambio.IsPositive() {
		errs = append(errs, fmt.Errorf("tipo de cambio debe ser mayor que cero para %s, se recibió %s", f.Moneda, f.TipoCambio.StringFixed(4)))
	}
	if f.FechaEmision.After(ahora.Add(toleranciaReloj)) {
		errs = append(errs, fmt.Errorf("fecha de emisión en el futuro: %s", FechaCFDI(f.FechaEmision)))
	}
	if ahora.Sub(f.FechaEmision) > ventanaEmision {
		errs = append(errs, fmt.Errorf("fecha de emisión fuera de la ventana de 72 horas: %s", FechaCFDI(f.FechaEmision)))
	}

	// ── Conceptos ─────────────────────────────────────────────────────────────
	if len(detalles) == 0 {
		errs = append(errs, fmt.Errorf("la factura debe tener al menos un concepto"))
	}
	for i, d := range detalles {
		if d.ClaveProdServ == "" {
			errs = append(errs, fmt.Errorf("concepto %d: clave de producto/servicio requerida", i+1))
		}
		if d.ClaveUnidad == "" {
			errs = append(errs, fmt.Errorf("concepto %d: clave de unidad requerida", i+1))
		}
		if d.Descripcion == "" {
			errs = append(errs, fmt.Errorf("concepto %d: descripción requerida", i+1))
		}
		if !d.Cantidad.IsPositive() {
			errs = append(errs, fmt.Errorf("concepto %d: cantidad debe ser mayor que cero", i+1))
		}
		if d.ValorUnitario.IsNegative() {
			errs = append(errs, fmt.Errorf("concepto %d: valor unitario negativo", i+1))
		}
		if !pkgsat.ValidObjetoImp[d.ObjetoImp] {
			errs = append(errs, fmt.Errorf("concepto %d: objeto de impuesto inválido: %q", i+1, d.ObjetoImp))
		}
		// Importe declarado vs cantidad × valor unitario.
		esperado := d.Cantidad.Mul(d.ValorUnitario).Round(2)
		if d.Importe.Sub(esperado).Abs().GreaterThan(toleranciaImporte) {
			errs = append(errs, fmt.Errorf("concepto %d: importe %s no coincide con cantidad × valor unitario (%s)",
				i+1, monto(d.Importe), monto(esperado)))
		}
	}

	// ── Aritmética de totales ─────────────────────────────────────────────────
	if len(detalles) > 0 {
		var sumSubtotal, sumIVA decimal.Decimal
		for _, d := range detalles {
			sumSubtotal = sumSubtotal.Add(d.Importe)
			sumIVA = sumIVA.Add(d.IVATrasladado())
		}
		sumSubtotal = sumSubtotal.Round(2)
		sumIVA = sumIVA.Round(2)

		if f.Subtotal.Sub(sumSubtotal).Abs().GreaterThan(toleranciaImporte) {
			errs = append(errs, fmt.Errorf("subtotal %s no coincide con la suma de conceptos (%s)",
				monto(f.Subtotal), monto(sumSubtotal)))
		}
		if f.Impuesto.Sub(sumIVA).Abs().GreaterThan(toleranciaImporte) {
			errs = append(errs, fmt.Errorf("impuesto %s no coincide con el IVA calculado (%s)",
				monto(f.Impuesto), monto(sumIVA)))
		}
		totalEsperado := sumSubtotal.Sub(f.Descuento).Add(sumIVA).Round(2)
		if f.Total.Sub(totalEsperado).Abs().GreaterThan(toleranciaImporte) {
			errs = append(errs, fmt.Errorf("total %s no coincide con subtotal - descuento + impuestos (%s)",
				monto(f.Total), monto(totalEsperado)))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrValidacion}, errs...)...)
	}
	return nil
}
