package entity

import "time"

// PAC soportado. El único integrado hoy es Prodigia (PADE).
const PACProdigia = "PRODIGIA"

// Emisor es el perfil fiscal que firma y timbra: datos del contribuyente,
// material criptográfico del CSD (en base64, tal como se captura) y
// credenciales del PAC.
type Emisor struct {
	ID            string
	RazonSocial   string
	RFC           string
	CodigoPostal  string // También LugarExpedicion por defecto
	RegimenFiscal string // Catálogo c_RegimenFiscal (601, 612, 626...)
	Serie         string

	// CSD: certificado y llave privada en base64 (DER o PEM) y contraseña de la llave.
	ArchivoCertificado string
	ArchivoLlave       string
	PasswordLlave      string

	// Credenciales del PAC.
	NombrePAC   string
	Contrato    string
	UsuarioPAC  string
	PasswordPAC string

	// TimbradoPrueba selecciona el ambiente de pruebas del PAC. Un emisor en
	// producción con simulación local activa es un error de configuración.
	TimbradoPrueba bool
	Activo         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
