// Carga y validación del CSD (Certificado de Sello Digital) y sellado
// RSA-SHA256 de la cadena original.

package sat

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
)

// Umbral mínimo de material criptográfico: por debajo es un archivo truncado
// o una captura errónea, no un certificado.
const minBytesCertificado = 100

// Días de anticipación con que se advierte el vencimiento del CSD.
const diasAvisoVencimiento = 30

// MaterialSellado es el CSD listo para sellar: certificado, llave y los dos
// valores que van en el XML (NoCertificado y el certificado en base64).
type MaterialSellado struct {
	Certificado    *x509.Certificate
	Llave          *rsa.PrivateKey
	NoCertificado  string
	CertificadoB64 string
}

// CertificadoService valida el CSD del emisor y genera el sello digital.
type CertificadoService struct{}

// NewCertificadoService crea el servicio.
func NewCertificadoService() *CertificadoService {
	return &CertificadoService{}
}

// CargarMaterial decodifica y valida el certificado y la llave del emisor y
// los deja listos para sellar. No aplica las reglas de negocio (FIEL,
// vigencia, RFC); eso lo hace ValidarEmisor.
func (s *CertificadoService) CargarMaterial(e *entity.Emisor) (*MaterialSellado, error) {
	cert, err := s.ParsearCertificado(e.ArchivoCertificado)
	if err != nil {
		return nil, err
	}
	llave, err := s.CargarLlave(e.ArchivoLlave, e.PasswordLlave)
	if err != nil {
		return nil, err
	}
	// La llave debe corresponder al certificado.
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: el certificado no contiene una llave pública RSA", domain.ErrCertificado)
	}
	if pub.N.Cmp(llave.N) != 0 {
		return nil, fmt.Errorf("%w: la llave privada no corresponde al certificado", domain.ErrCertificado)
	}
	return &MaterialSellado{
		Certificado:    cert,
		Llave:          llave,
		NoCertificado:  NoCertificado(cert),
		CertificadoB64: base64.StdEncoding.EncodeToString(cert.Raw),
	}, nil
}

// ParsearCertificado decodifica el certificado almacenado en base64.
// Acepta DER (formato usual del SAT) y PEM.
func (s *CertificadoService) ParsearCertificado(certB64 string) (*x509.Certificate, error) {
	datos, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certB64))
	if err != nil {
		return nil, fmt.Errorf("%w: el certificado no es base64 válido: %v", domain.ErrCertificado, err)
	}
	if len(datos) < minBytesCertificado {
		return nil, fmt.Errorf("%w: certificado truncado (%d bytes)", domain.ErrCertificado, len(datos))
	}
	if cert, err := x509.ParseCertificate(datos); err == nil {
		return cert, nil
	}
	// Reintento como PEM.
	if block, _ := pem.Decode(datos); block != nil {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: certificado PEM ilegible: %v", domain.ErrCertificado, err)
		}
		return cert, nil
	}
	return nil, fmt.Errorf("%w: el certificado no es DER ni PEM", domain.ErrCertificado)
}

// CargarLlave decodifica la llave privada en base64. Acepta PEM (cifrado
// con DEK-Info o en claro), DER PKCS#8/PKCS#1 en claro y bundles PKCS#12.
func (s *CertificadoService) CargarLlave(llaveB64, password string) (*rsa.PrivateKey, error) {
	datos, err := base64.StdEncoding.DecodeString(strings.TrimSpace(llaveB64))
	if err != nil {
		return nil, fmt.Errorf("%w: la llave no es base64 válido: %v", domain.ErrCertificado, err)
	}
	if len(datos) < minBytesCertificado {
		return nil, fmt.Errorf("%w: llave truncada (%d bytes)", domain.ErrCertificado, len(datos))
	}

	if block, _ := pem.Decode(datos); block != nil {
		der := block.Bytes
		if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // llaves CSD legadas usan cifrado PEM
			der, err = x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
			if err != nil {
				return nil, fmt.Errorf("%w: contraseña de la llave incorrecta: %v", domain.ErrCertificado, err)
			}
		}
		return parseLlaveDER(der)
	}

	// PKCS#12 (.pfx con certificado y llave juntos).
	if priv, _, p12Err := pkcs12.Decode(datos, password); p12Err == nil {
		if rsaKey, ok := priv.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: el PKCS#12 no contiene una llave RSA", domain.ErrCertificado)
	}

	// DER directo (solo llaves en claro; las .key cifradas del SAT deben
	// convertirse a PEM antes de capturarse).
	key, err := parseLlaveDER(datos)
	if err != nil {
		return nil, fmt.Errorf("%w: la llave no es PEM, PKCS#12 ni DER en claro; convertirla a PEM con su contraseña", domain.ErrCertificado)
	}
	return key, nil
}

func parseLlaveDER(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: la llave no es RSA", domain.ErrCertificado)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: llave privada ilegible", domain.ErrCertificado)
}

// Sellar firma la cadena original con RSA PKCS#1 v1.5 sobre SHA-256 y
// devuelve el sello en base64.
func (s *CertificadoService) Sellar(cadena string, llave *rsa.PrivateKey) (string, error) {
	if cadena == "" {
		return "", fmt.Errorf("%w: cadena original vacía", domain.ErrSello)
	}
	hash := sha256.Sum256([]byte(cadena))
	firma, err := rsa.SignPKCS1v15(nil, llave, crypto.SHA256, hash[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSello, err)
	}
	return base64.StdEncoding.EncodeToString(firma), nil
}

// VerificarSello comprueba un sello contra la cadena y el certificado.
func (s *CertificadoService) VerificarSello(cadena, selloB64 string, cert *x509.Certificate) error {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: llave pública no RSA", domain.ErrCertificado)
	}
	firma, err := base64.StdEncoding.DecodeString(selloB64)
	if err != nil {
		return fmt.Errorf("%w: sello no es base64: %v", domain.ErrSello, err)
	}
	hash := sha256.Sum256([]byte(cadena))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], firma); err != nil {
		return fmt.Errorf("%w: el sello no corresponde a la cadena", domain.ErrSello)
	}
	return nil
}

// EsFIEL aplica la heurística para distinguir una FIEL (firma electrónica,
// no apta para sellar CFDI) de un CSD: correo en el SAN con marcador de
// autenticación, EKU de clientAuth + emailProtection, o marcador en el CN.
func (s *CertificadoService) EsFIEL(cert *x509.Certificate) bool {
	for _, email := range cert.EmailAddresses {
		lower := strings.ToLower(email)
		if strings.Contains(lower, "fiel") || strings.Contains(lower, "autenticacion") {
			return true
		}
	}
	var tieneClientAuth, tieneEmail bool
	for _, eku := range cert.ExtKeyUsage {
		switch eku {
		case x509.ExtKeyUsageClientAuth:
			tieneClientAuth = true
		case x509.ExtKeyUsageEmailProtection:
			tieneEmail = true
		}
	}
	if tieneClientAuth && tieneEmail {
		return true
	}
	cn := strings.ToLower(cert.Subject.CommonName)
	return strings.Contains(cn, "fiel") || strings.Contains(cn, "autenticacion")
}

// ValidarVigencia comprueba el periodo de validez en UTC. Devuelve una
// advertencia (no error) cuando faltan menos de 30 días para el vencimiento.
func (s *CertificadoService) ValidarVigencia(cert *x509.Certificate, ahora time.Time) (advertencia string, err error) {
	ahora = ahora.UTC()
	if ahora.Before(cert.NotBefore) {
		return "", fmt.Errorf("%w: el certificado aún no es vigente (inicia %s)",
			domain.ErrCertificado, cert.NotBefore.Format("2006-01-02"))
	}
	if ahora.After(cert.NotAfter) {
		return "", fmt.Errorf("%w: el certificado venció el %s",
			domain.ErrCertificado, cert.NotAfter.Format("2006-01-02"))
	}
	if restante := cert.NotAfter.Sub(ahora); restante < diasAvisoVencimiento*24*time.Hour {
		return fmt.Sprintf("el certificado vence en %d días (%s)",
			int(restante.Hours()/24), cert.NotAfter.Format("2006-01-02")), nil
	}
	return "", nil
}

// RFCDelCertificado extrae el RFC del sujeto (x500UniqueIdentifier o, en su
// defecto, serialNumber del sujeto). El SAT a veces anexa la CURP tras una
// diagonal; se toma solo el primer segmento.
func (s *CertificadoService) RFCDelCertificado(cert *x509.Certificate) string {
	for _, atv := range cert.Subject.Names {
		// OID 2.5.4.45 = x500UniqueIdentifier (ahí va el RFC en los CSD).
		if atv.Type.String() == "2.5.4.45" {
			if v, ok := atv.Value.(string); ok {
				return strings.TrimSpace(strings.SplitN(v, "/", 2)[0])
			}
		}
	}
	return strings.TrimSpace(strings.SplitN(cert.Subject.SerialNumber, "/", 2)[0])
}

// ValidarEmisor compone todas las comprobaciones del CSD contra el perfil del
// emisor: material legible, no FIEL, vigencia y RFC coincidente. Devuelve las
// advertencias acumuladas y el primer error duro.
func (s *CertificadoService) ValidarEmisor(e *entity.Emisor, ahora time.Time) (advertencias []string, err error) {
	material, err := s.CargarMaterial(e)
	if err != nil {
		return nil, err
	}
	if s.EsFIEL(material.Certificado) {
		return nil, fmt.Errorf("%w: el certificado es una FIEL; para timbrar se requiere un CSD", domain.ErrCertificado)
	}
	adv, err := s.ValidarVigencia(material.Certificado, ahora)
	if err != nil {
		return nil, err
	}
	if adv != "" {
		advertencias = append(advertencias, adv)
	}
	if rfcCert := s.RFCDelCertificado(material.Certificado); rfcCert != "" && !strings.EqualFold(rfcCert, e.RFC) {
		return advertencias, fmt.Errorf("%w: el RFC del certificado (%s) no coincide con el del emisor (%s)",
			domain.ErrCertificado, rfcCert, e.RFC)
	}
	return advertencias, nil
}

// NoCertificado deriva el número de certificado de 20 dígitos a partir del
// serial: el SAT codifica los dígitos como ASCII dentro del serial.
func NoCertificado(cert *x509.Certificate) string {
	h := fmt.Sprintf("%x", cert.SerialNumber)
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err == nil && len(b) > 0 && esNumerico(b) {
		return string(b)
	}
	return h
}

func esNumerico(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
