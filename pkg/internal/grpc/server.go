package grpc

import (
	"net"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/auth"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/services"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type App struct {
	ledger *services.Ledger
	authn  auth.Authenticator

	srv    *grpc.Server
	health *health.Server
}

func NewGrpc(ledger *services.Ledger, authn auth.Authenticator) *App {
	server := &App{
		ledger: ledger,
		authn:  authn,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
	}

	RegisterLedgerServer(server.srv, server)
	healthpb.RegisterHealthServer(server.srv, server.health)
	server.health.SetServingStatus(ledgerServiceName, healthpb.HealthCheckResponse_SERVING)

	return server
}

func (v *App) Listen() error {
	listener, err := net.Listen("tcp", viper.GetString("grpc_bind"))
	if err != nil {
		return err
	}

	return v.Serve(listener)
}

func (v *App) Serve(listener net.Listener) error {
	return v.srv.Serve(listener)
}

func (v *App) Stop() {
	v.health.Shutdown()
	v.srv.GracefulStop()
}
