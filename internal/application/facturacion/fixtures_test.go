package facturacion_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
	"github.com/directiva-agricola/facturacion-api/internal/domain/entity"
	"github.com/directiva-agricola/facturacion-api/internal/domain/repository"
	"github.com/directiva-agricola/facturacion-api/internal/infrastructure/pac"
)

const rfcEmisorPrueba = "AVA120508AB1"

// ── Repositorios en memoria ───────────────────────────────────────────────────

type facturaRepoMem struct {
	mu       sync.Mutex
	facturas map[string]*entity.Factura
	detalles map[string][]*entity.FacturaDetalle
}

func newFacturaRepoMem() *facturaRepoMem {
	return &facturaRepoMem{
		facturas: map[string]*entity.Factura{},
		detalles: map[string][]*entity.FacturaDetalle{},
	}
}

func (m *facturaRepoMem) Create(ctx context.Context, f *entity.Factura) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	copia := *f
	m.facturas[f.ID] = &copia
	return nil
}

func (m *facturaRepoMem) CreateDetalle(ctx context.Context, d *entity.FacturaDetalle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	m.detalles[d.FacturaID] = append(m.detalles[d.FacturaID], d)
	return nil
}

func (m *facturaRepoMem) GetByID(ctx context.Context, id string) (*entity.Factura, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facturas[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copia := *f
	return &copia, nil
}

func (m *facturaRepoMem) GetDetalles(ctx context.Context, facturaID string) ([]*entity.FacturaDetalle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detalles[facturaID], nil
}

func (m *facturaRepoMem) ActualizarTimbrado(ctx context.Context, f *entity.Factura) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	actual, ok := m.facturas[f.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if actual.EstadoTimbrado != entity.EstadoPendiente && actual.EstadoTimbrado != entity.EstadoError {
		return fmt.Errorf("%w: la factura ya no está en un estado timbrable", domain.ErrEstado)
	}
	copia := *f
	copia.IntentosTimbrado = actual.IntentosTimbrado + 1
	ahora := time.Now()
	copia.UltimoIntento = &ahora
	m.facturas[f.ID] = &copia
	return nil
}

func (m *facturaRepoMem) RegistrarFallo(ctx context.Context, id, mensaje string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facturas[id]
	if !ok {
		return domain.ErrNotFound
	}
	f.ErroresValidacion = mensaje
	return nil
}

func (m *facturaRepoMem) MarcarError(ctx context.Context, id, mensaje string, contarIntento bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facturas[id]
	if !ok {
		return domain.ErrNotFound
	}
	f.EstadoTimbrado = entity.EstadoError
	f.ErroresValidacion = mensaje
	if contarIntento {
		f.IntentosTimbrado++
		ahora := time.Now()
		f.UltimoIntento = &ahora
	}
	return nil
}

func (m *facturaRepoMem) Cancelar(ctx context.Context, id, motivo, acuse string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facturas[id]
	if !ok {
		return domain.ErrNotFound
	}
	if f.EstadoTimbrado != entity.EstadoTimbrado {
		return fmt.Errorf("%w: solo una factura timbrada puede cancelarse", domain.ErrEstado)
	}
	ahora := time.Now()
	f.EstadoTimbrado = entity.EstadoCancelado
	f.MotivoCancelacion = motivo
	f.AcuseCancelacion = acuse
	f.FechaCancelacion = &ahora
	return nil
}

func (m *facturaRepoMem) ExisteFolio(ctx context.Context, emisorID, serie, folio, exceptoID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.facturas {
		if f.ID != exceptoID && f.EmisorID == emisorID && f.Serie == serie && f.Folio == folio {
			return true, nil
		}
	}
	return false, nil
}

type emisorRepoMem struct {
	emisores map[string]*entity.Emisor
}

func (m *emisorRepoMem) GetByID(ctx context.Context, id string) (*entity.Emisor, error) {
	e, ok := m.emisores[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (m *emisorRepoMem) GetActivo(ctx context.Context) (*entity.Emisor, error) {
	for _, e := range m.emisores {
		if e.Activo {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

type clienteRepoMem struct {
	clientes map[string]*entity.Cliente
}

func (m *clienteRepoMem) GetByID(ctx context.Context, id string) (*entity.Cliente, error) {
	c, ok := m.clientes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type pagoRepoMem struct {
	mu    sync.Mutex
	pagos map[string]*entity.PagoFactura
}

func newPagoRepoMem() *pagoRepoMem {
	return &pagoRepoMem{pagos: map[string]*entity.PagoFactura{}}
}

func (m *pagoRepoMem) Create(ctx context.Context, p *entity.PagoFactura) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	copia := *p
	m.pagos[p.ID] = &copia
	return nil
}

func (m *pagoRepoMem) GetByID(ctx context.Context, id string) (*entity.PagoFactura, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pagos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copia := *p
	return &copia, nil
}

func (m *pagoRepoMem) GetByFacturaID(ctx context.Context, facturaID string) ([]*entity.PagoFactura, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PagoFactura
	for _, p := range m.pagos {
		if p.FacturaID == facturaID {
			copia := *p
			out = append(out, &copia)
		}
	}
	return out, nil
}

func (m *pagoRepoMem) TotalPagado(ctx context.Context, facturaID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, p := range m.pagos {
		if p.FacturaID == facturaID && p.EstadoTimbrado == entity.EstadoTimbrado {
			total = total.Add(p.MontoPago)
		}
	}
	return total, nil
}

func (m *pagoRepoMem) ActualizarTimbrado(ctx context.Context, p *entity.PagoFactura) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pagos[p.ID]; !ok {
		return domain.ErrNotFound
	}
	copia := *p
	m.pagos[p.ID] = &copia
	return nil
}

// txRunnerMem entrega los mismos repositorios en memoria; no hay transacción
// real que abortar, así que un fallo de fn solo se propaga.
type txRunnerMem struct {
	facturas *facturaRepoMem
	pagos    *pagoRepoMem
	err      error
}

func (r *txRunnerMem) RunFacturacion(ctx context.Context, fn func(
	facturaRepo repository.FacturaRepository,
	pagoRepo repository.PagoFacturaRepository,
) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(r.facturas, r.pagos)
}

// ── Timbrador de prueba ───────────────────────────────────────────────────────

type timbradorFake struct {
	mu       sync.Mutex
	llamadas int
	err      error
	demora   time.Duration

	// alLlamar se ejecuta dentro de Timbrar; permite simular al caller
	// cancelando el request a mitad del envío.
	alLlamar func()

	// resultado reemplaza la respuesta por defecto cuando no es nil.
	resultado *pac.TimbradoResult
}

func (t *timbradorFake) Timbrar(ctx context.Context, req *pac.TimbradoRequest) (*pac.TimbradoResult, error) {
	t.mu.Lock()
	t.llamadas++
	t.mu.Unlock()
	if t.alLlamar != nil {
		t.alLlamar()
	}
	if t.demora > 0 {
		time.Sleep(t.demora)
	}
	if t.err != nil {
		return nil, t.err
	}
	if t.resultado != nil {
		return t.resultado, nil
	}
	return &pac.TimbradoResult{
		UUID:             uuid.New().String(),
		FechaTimbrado:    "2026-03-15T10:31:05",
		SelloCFD:         "selloCFD",
		NoCertificadoSAT: "30001000000500003416",
		SelloSAT:         "selloSAT",
		XMLTimbrado:      []byte(`<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4"/>`),
	}, nil
}

func (t *timbradorFake) Cancelar(ctx context.Context, uuid, motivo string) error {
	return t.err
}

func (t *timbradorFake) Consultar(ctx context.Context, uuid string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return "Vigente", nil
}

func (t *timbradorFake) vecesLlamado() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.llamadas
}

// ── CSD de prueba ─────────────────────────────────────────────────────────────

// emisorPrueba genera un CSD autofirmado con el RFC del emisor y lo deja
// capturado en base64, como lo guarda el perfil fiscal.
func emisorPrueba(t *testing.T) *entity.Emisor {
	t.Helper()

	llave, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	serial := new(big.Int).SetBytes([]byte("30001000000400002434"))
	plantilla := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "AGRICOLA DEL VALLE SA DE CV",
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: asn1.ObjectIdentifier{2, 5, 4, 45}, Value: rfcEmisorPrueba},
			},
		},
		NotBefore: time.Now().Add(-24 * time.Hour),
		NotAfter:  time.Now().Add(4 * 365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, plantilla, plantilla, &llave.PublicKey, llave)
	require.NoError(t, err)

	llaveDER, err := x509.MarshalPKCS8PrivateKey(llave)
	require.NoError(t, err)
	llavePEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: llaveDER})

	return &entity.Emisor{
		ID:                 "emisor-1",
		RazonSocial:        "AGRICOLA DEL VALLE",
		RFC:                rfcEmisorPrueba,
		CodigoPostal:       "80000",
		RegimenFiscal:      "601",
		Serie:              "A",
		ArchivoCertificado: base64.StdEncoding.EncodeToString(der),
		ArchivoLlave:       base64.StdEncoding.EncodeToString(llavePEM),
		NombrePAC:          entity.PACProdigia,
		TimbradoPrueba:     true,
		Activo:             true,
	}
}

func clientePrueba() *entity.Cliente {
	return &entity.Cliente{
		ID:            "cliente-1",
		EmisorID:      "emisor-1",
		RazonSocial:   "COMERCIAL DEL NOROESTE",
		RFC:           "CNO980512XY2",
		CodigoPostal:  "64000",
		RegimenFiscal: "601",
		UsoCFDI:       "G03",
	}
}

// facturaPrueba arma una factura timbrable con un concepto gravado.
func facturaPrueba(metodoPago string) (*entity.Factura, *entity.FacturaDetalle) {
	f := &entity.Factura{
		ID:              "factura-1",
		EmisorID:        "emisor-1",
		ClienteID:       "cliente-1",
		Serie:           "A",
		Folio:           "1234",
		FechaEmision:    time.Now().Add(-time.Hour),
		LugarExpedicion: "80000",
		Moneda:          "MXN",
		TipoCambio:      decimal.NewFromInt(1),
		FormaPago:       "03",
		MetodoPago:      metodoPago,
		UsoCFDI:         "G03",
		Exportacion:     "01",
		Subtotal:        decimal.NewFromInt(100),
		Impuesto:        decimal.NewFromInt(16),
		Total:           decimal.NewFromInt(116),
		EstadoTimbrado:  entity.EstadoPendiente,
	}
	d := &entity.FacturaDetalle{
		ID:            "detalle-1",
		FacturaID:     f.ID,
		ClaveProdServ: "01010101",
		ClaveUnidad:   "H87",
		Descripcion:   "Caja de tomate saladette",
		Cantidad:      decimal.NewFromInt(1),
		ValorUnitario: decimal.NewFromInt(100),
		Importe:       decimal.NewFromInt(100),
		ObjetoImp:     entity.ObjetoImpSi,
		TasaIVA:       decimal.NewFromFloat(0.16),
	}
	return f, d
}
