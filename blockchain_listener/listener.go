package blockchain_listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// StatusClient é o pedaço do cliente RPC que o listener usa.
type StatusClient interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Finalized descreve uma transação finalizada na rede.
type Finalized struct {
	Signature solana.Signature
	Slot      uint64
}

// BlockchainListener acompanha transações submetidas até que sejam finalizadas.
type BlockchainListener struct {
	client   StatusClient
	interval time.Duration
	logger   *zap.Logger
}

// NewBlockchainListener cria o listener. interval é o intervalo entre consultas de status.
func NewBlockchainListener(client StatusClient, interval time.Duration, logger *zap.Logger) *BlockchainListener {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlockchainListener{client: client, interval: interval, logger: logger}
}

// WaitFinalized consulta o status da assinatura até a finalização. Um erro on-chain vira
// ErrNetworkRejected e o fim do contexto vira ErrSubmitTimeout.
func (l *BlockchainListener) WaitFinalized(ctx context.Context, sig solana.Signature) (Finalized, error) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		done, out, err := l.poll(ctx, sig)
		if done {
			return out, err
		}
		select {
		case <-ctx.Done():
			l.logger.Warn("transação não finalizada a tempo", zap.String("signature", sig.String()))
			return Finalized{}, apperrors.Wrap(apperrors.ErrSubmitTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// poll faz uma consulta. Falhas de RPC são transitórias e só adiam a próxima tentativa.
func (l *BlockchainListener) poll(ctx context.Context, sig solana.Signature) (bool, Finalized, error) {
	resp, err := l.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, Finalized{}, nil
		}
		l.logger.Debug("falha ao consultar status", zap.String("signature", sig.String()), zap.Error(err))
		return false, Finalized{}, nil
	}
	if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
		return false, Finalized{}, nil
	}

	status := resp.Value[0]
	if status.Err != nil {
		l.logger.Warn("transação falhou na rede", zap.String("signature", sig.String()), zap.Any("err", status.Err))
		return true, Finalized{}, apperrors.Newf(apperrors.ErrNetworkRejected, "transação %s falhou: %v", sig, status.Err)
	}
	if status.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
		return false, Finalized{}, nil
	}

	l.logger.Info("transação finalizada", zap.String("signature", sig.String()), zap.Uint64("slot", status.Slot))
	return true, Finalized{Signature: sig, Slot: status.Slot}, nil
}

func (f Finalized) String() string {
	return fmt.Sprintf("%s@%d", f.Signature, f.Slot)
}
