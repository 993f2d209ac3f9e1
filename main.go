package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferreirogomes/cotas/blockchain_listener"
	"github.com/ferreirogomes/cotas/config"
	"github.com/ferreirogomes/cotas/handlers"
	"github.com/ferreirogomes/cotas/ledger"
	"github.com/ferreirogomes/cotas/models"
	"github.com/ferreirogomes/cotas/services"
	"github.com/ferreirogomes/cotas/signer"
	"github.com/ferreirogomes/cotas/storage"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuração inválida: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "falha ao criar logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("servidor encerrado com erro", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return fmt.Errorf("falha fatal ao conectar ao banco de dados e aplicar migrações: %w", err)
	}
	defer db.Close()

	// O ledger é reconstruído a partir do banco antes de aceitar requisições.
	snapshot, err := db.Load(ctx)
	if err != nil {
		return err
	}
	clk := clock.New()
	own := ledger.NewOwnershipLedger(db, clk, logger.Named("ownership"))
	income := ledger.NewIncomeDistributor(own, logger.Named("income"))
	gov := ledger.NewGovernanceEngine(own, logger.Named("governance"))
	own.Restore(snapshot)
	income.Restore(snapshot)
	gov.Restore(snapshot)

	network, err := newNetwork(cfg, clk, logger.Named("network"))
	if err != nil {
		return err
	}

	bridge, err := newBridge(cfg, logger.Named("signer"))
	if err != nil {
		return err
	}
	if bridge != nil {
		defer bridge.Disconnect(context.Background())
	}

	orchestrator := services.NewOrchestrator(own, income, gov, bridge, network,
		services.Options{SubmitTimeout: cfg.SubmitTimeout}, logger.Named("orchestrator"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.NewRouter(orchestrator, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("servidor rodando", zap.String("addr", cfg.HTTPAddr), zap.String("network", cfg.Network), zap.String("signer", cfg.Signer))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("encerrando servidor")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newNetwork escolhe a rede de liquidação.
func newNetwork(cfg config.Config, clk clock.Clock, logger *zap.Logger) (services.Network, error) {
	switch cfg.Network {
	case "solana":
		feePayer, err := solana.PrivateKeyFromBase58(cfg.SolanaFeePayerKey)
		if err != nil {
			return nil, fmt.Errorf("chave do fee payer inválida: %w", err)
		}
		client := rpc.New(cfg.SolanaRPCURL)
		listener := blockchain_listener.NewBlockchainListener(client, cfg.SolanaPollInterval, logger.Named("listener"))
		svc := services.NewSolanaIntegrationService(client, feePayer, listener, services.SolanaOptions{
			ValidityWindow: cfg.ValidityWindow,
			Fee:            cfg.Fee,
			Escrow:         cfg.Escrow,
		}, logger)
		logger.Info("rede solana configurada", zap.String("rpc", cfg.SolanaRPCURL), zap.String("fee_payer", feePayer.PublicKey().String()))
		return svc.WithClock(clk), nil

	default:
		escrow := cfg.Escrow
		if escrow == "" {
			// Sem custódia configurada, a rede local usa uma conta descartável.
			escrow = solana.NewWallet().PublicKey().String()
		}
		logger.Info("rede loopback configurada", zap.String("genesis", cfg.GenesisID), zap.String("escrow", escrow))
		return services.NewLoopbackNetwork(models.NetworkParams{
			GenesisID:      cfg.GenesisID,
			FirstValid:     1,
			ValidityWindow: cfg.ValidityWindow,
			Fee:            cfg.Fee,
			Escrow:         escrow,
		}, clk, logger), nil
	}
}

// newBridge monta o assinante do servidor; sem assinante, só o fluxo prepare/complete funciona.
func newBridge(cfg config.Config, logger *zap.Logger) (*signer.Bridge, error) {
	opts := signer.Options{ConnectTimeout: cfg.ConnectTimeout, SignTimeout: cfg.SignTimeout}
	switch cfg.Signer {
	case "local":
		s, err := signer.NewLocalSignerFromBase58(cfg.SignerKey)
		if err != nil {
			return nil, err
		}
		logger.Info("assinante local", zap.String("address", s.Address()))
		return signer.NewBridge(s, opts, logger), nil
	case "remote":
		logger.Info("assinante remoto", zap.String("wallet", cfg.WalletURL))
		return signer.NewBridge(signer.NewRemoteSigner(cfg.WalletURL, cfg.AppName, logger), opts, logger), nil
	default:
		return nil, nil
	}
}
