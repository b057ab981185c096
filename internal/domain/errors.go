package domain

import "errors"

// Errores de dominio (sin dependencias externas). Los casos de uso y los
// adaptadores los envuelven con fmt.Errorf("%w: ...") y los handlers deciden
// el código HTTP con errors.Is.
var (
	ErrNotFound = errors.New("recurso no encontrado")

	// ErrConfiguracion indica que el perfil del emisor está incompleto o es
	// inconsistente (certificado, llave, credenciales PAC). Se detecta antes
	// de contactar al PAC.
	ErrConfiguracion = errors.New("configuración del emisor incompleta o inválida")

	// ErrCertificado indica material criptográfico malformado, vencido o no
	// apto para sellar (por ejemplo una FIEL).
	ErrCertificado = errors.New("certificado digital inválido")

	// ErrValidacion agrupa problemas estructurales o aritméticos del
	// comprobante detectados antes del timbrado.
	ErrValidacion = errors.New("comprobante inválido")

	// ErrSello indica fallo al generar el sello digital de la cadena original.
	ErrSello = errors.New("error generando el sello digital")

	// ErrTransporte indica fallo de red contra el PAC (timeout, conexión,
	// respuesta malformada). Reintentable.
	ErrTransporte = errors.New("error de comunicación con el PAC")

	// ErrAutoridad indica que el PAC respondió pero rechazó el comprobante
	// con un código y mensaje propios. No se reintenta automáticamente.
	ErrAutoridad = errors.New("el PAC rechazó el comprobante")

	// ErrEstado indica que el estado actual de la factura no permite la
	// operación pedida (timbrar una TIMBRADO, cancelar una PENDIENTE, o dos
	// timbrados concurrentes sobre la misma factura).
	ErrEstado = errors.New("el estado de la factura no permite la operación")

	// ErrMaxReintentos se produce al agotar los reintentos de transporte de
	// un envío al PAC. Envuelve a ErrTransporte.
	ErrMaxReintentos = errors.New("se agotaron los reintentos de envío al PAC")

	ErrUnauthorized = errors.New("no autorizado")
	ErrDuplicate    = errors.New("recurso duplicado")
)
