// Package logger arma la bitácora estructurada del servicio de facturación.
// En desarrollo la salida es consola legible; en cualquier otro entorno JSON
// por línea. El material criptográfico del emisor (llaves, contraseñas, el
// contenido de los CSD) nunca se escribe aquí: de un sello solo se loguea el
// UUID o el folio, jamás la cadena firmada completa.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config opciones del logger raíz.
type Config struct {
	Env   string // development -> consola legible; cualquier otro -> JSON
	Level string // trace, debug, info, warn, error
}

// Logger envuelve zerolog para inyectarse en los constructores del servicio.
// Cada componente (orquestador, cliente PAC, repositorios) deriva su propio
// sublogger con el campo component fijo.
type Logger struct {
	zl zerolog.Logger
}

// New construye el logger raíz del proceso.
func New(cfg Config) *Logger {
	var w io.Writer = os.Stdout
	if cfg.Env == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	nivel, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || nivel == zerolog.NoLevel {
		nivel = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(nivel).With().Timestamp().Logger()

	// Las librerías que escriben al logger global de zerolog salen por la
	// misma bitácora.
	log.Logger = zl

	return &Logger{zl: zl}
}

// Trace, Debug, Info, Warn, Error, Fatal delegados a zerolog.
func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Con deriva un sublogger con el campo component fijo, la convención de
// todo el servicio.
func (l *Logger) Con(componente string) zerolog.Logger {
	return l.zl.With().Str("component", componente).Logger()
}

// Zerolog devuelve el logger interno para los constructores que reciben
// zerolog.Logger directo.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}
