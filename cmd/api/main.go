package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/directiva-agricola/facturacion-api/internal/application/facturacion"
	domsat "github.com/directiva-agricola/facturacion-api/internal/domain/sat"
	"github.com/directiva-agricola/facturacion-api/internal/infrastructure/pac"
	"github.com/directiva-agricola/facturacion-api/internal/infrastructure/postgres"
	infsat "github.com/directiva-agricola/facturacion-api/internal/infrastructure/sat"
	httpRouter "github.com/directiva-agricola/facturacion-api/internal/interfaces/http"
	"github.com/directiva-agricola/facturacion-api/pkg/config"
	"github.com/directiva-agricola/facturacion-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	facturaRepo := postgres.NewFacturaRepository(pool)
	emisorRepo := postgres.NewEmisorRepository(pool)
	clienteRepo := postgres.NewClienteRepository(pool)
	pagoRepo := postgres.NewPagoRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	cadenaSvc := domsat.NewCadenaService()
	certificadoSvc := infsat.NewCertificadoService()
	xmlBuilder := infsat.NewXMLBuilderService()
	pagoBuilder := infsat.NewPagoXMLBuilderService()

	// Timbrador: PAC real o simulador local. El orquestador rechaza la
	// simulación cuando el entorno es production.
	var timbrador pac.Timbrador
	if cfg.PAC.Simulacion {
		timbrador = pac.NewSimulador(log.Zerolog())
		log.Warn().Msg("timbrado en modo simulación: los CFDI no tienen validez fiscal")
	} else {
		timbrador = pac.NewProdigiaClient(pac.Config{
			URL:              cfg.PAC.URL,
			Contrato:         cfg.PAC.Contrato,
			Usuario:          cfg.PAC.Usuario,
			Password:         cfg.PAC.Password,
			Timeout:          time.Duration(cfg.PAC.TimeoutSegundos) * time.Second,
			MaxReintentos:    cfg.PAC.MaxReintentos,
			RetrasoReintento: time.Duration(cfg.PAC.RetrasoSegundos) * time.Second,
			FactorBackoff:    cfg.PAC.FactorBackoff,
		}, log.Zerolog())
	}

	entorno := facturacion.EntornoPruebas
	if cfg.App.Env == "production" {
		entorno = facturacion.EntornoProduccion
	}

	orquestador := facturacion.NewTimbradoOrchestrator(
		facturaRepo, emisorRepo, clienteRepo,
		cadenaSvc, certificadoSvc, xmlBuilder,
		timbrador,
		facturacion.Config{Entorno: entorno, Simulacion: cfg.PAC.Simulacion},
		log.Zerolog(),
	)
	crearFacturaUC := facturacion.NewCrearFacturaUseCase(
		txRunner, facturaRepo, emisorRepo, clienteRepo, log.Zerolog(),
	)
	pagoUC := facturacion.NewPagoUseCase(
		facturaRepo, emisorRepo, clienteRepo, pagoRepo,
		cadenaSvc, certificadoSvc, pagoBuilder, timbrador, log.Zerolog(),
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 90, // el timbrado espera la respuesta del PAC
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		CrearFactura: crearFacturaUC,
		Orquestador:  orquestador,
		Pagos:        pagoUC,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
