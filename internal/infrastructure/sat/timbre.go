package sat

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/directiva-agricola/facturacion-api/internal/domain"
)

// ExtraerTimbre localiza el nodo TimbreFiscalDigital dentro del XML que
// regresa el PAC y devuelve sus campos. El XML timbrado es el comprobante
// original con el complemento agregado, por lo que se busca el nodo en
// cualquier nivel sin asumir prefijos.
func ExtraerTimbre(xmlTimbrado []byte) (*TimbreFiscal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlTimbrado); err != nil {
		return nil, fmt.Errorf("%w: XML timbrado ilegible: %v", domain.ErrAutoridad, err)
	}

	nodo := buscarElemento(doc.Root(), "TimbreFiscalDigital")
	if nodo == nil {
		return nil, fmt.Errorf("%w: el XML timbrado no contiene TimbreFiscalDigital", domain.ErrAutoridad)
	}

	t := &TimbreFiscal{
		UUID:             nodo.SelectAttrValue("UUID", ""),
		FechaTimbrado:    nodo.SelectAttrValue("FechaTimbrado", ""),
		SelloCFD:         nodo.SelectAttrValue("SelloCFD", ""),
		NoCertificadoSAT: nodo.SelectAttrValue("NoCertificadoSAT", ""),
		SelloSAT:         nodo.SelectAttrValue("SelloSAT", ""),
	}
	if t.UUID == "" {
		return nil, fmt.Errorf("%w: el timbre no trae UUID", domain.ErrAutoridad)
	}
	return t, nil
}

// CadenaOriginalTimbre arma la cadena del complemento de certificación.
func CadenaOriginalTimbre(t *TimbreFiscal) string {
	var b strings.Builder
	b.WriteString("||1.1|")
	b.WriteString(t.UUID)
	b.WriteString("|")
	b.WriteString(t.FechaTimbrado)
	b.WriteString("|")
	b.WriteString(t.SelloCFD)
	b.WriteString("|")
	b.WriteString(t.NoCertificadoSAT)
	b.WriteString("||")
	return b.String()
}

// buscarElemento recorre el árbol en profundidad comparando el nombre local.
func buscarElemento(e *etree.Element, local string) *etree.Element {
	if e == nil {
		return nil
	}
	if e.Tag == local {
		return e
	}
	for _, hijo := range e.ChildElements() {
		if n := buscarElemento(hijo, local); n != nil {
			return n
		}
	}
	return nil
}
