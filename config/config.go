// Package config carrega a configuração do serviço a partir do ambiente (e de um .env opcional).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config reúne tudo que o main precisa para montar o serviço.
type Config struct {
	HTTPAddr string `env:"COTAS_HTTP_ADDR" envDefault:":8080"`

	DBDriver string `env:"COTAS_DB_DRIVER" envDefault:"sqlite"` // postgres | sqlite
	DBDSN    string `env:"COTAS_DB_DSN" envDefault:"file:cotas.db?_pragma=busy_timeout(5000)"`

	Network        string `env:"COTAS_NETWORK" envDefault:"loopback"` // loopback | solana
	GenesisID      string `env:"COTAS_GENESIS_ID" envDefault:"cotas-loopback"`
	ValidityWindow uint64 `env:"COTAS_VALIDITY_WINDOW" envDefault:"150"`
	Fee            uint64 `env:"COTAS_FEE" envDefault:"5000"`
	Escrow         string `env:"COTAS_ESCROW"`

	SolanaRPCURL       string        `env:"COTAS_SOLANA_RPC_URL" envDefault:"https://api.devnet.solana.com"`
	SolanaFeePayerKey  string        `env:"COTAS_SOLANA_FEE_PAYER_KEY"`
	SolanaPollInterval time.Duration `env:"COTAS_SOLANA_POLL_INTERVAL" envDefault:"500ms"`

	Signer    string `env:"COTAS_SIGNER" envDefault:"none"` // none | local | remote
	SignerKey string `env:"COTAS_SIGNER_KEY"`
	WalletURL string `env:"COTAS_WALLET_URL"`
	AppName   string `env:"COTAS_APP_NAME" envDefault:"cotas"`

	ConnectTimeout time.Duration `env:"COTAS_CONNECT_TIMEOUT" envDefault:"30s"`
	SignTimeout    time.Duration `env:"COTAS_SIGN_TIMEOUT" envDefault:"2m"`
	SubmitTimeout  time.Duration `env:"COTAS_SUBMIT_TIMEOUT" envDefault:"60s"`

	LogLevel  string `env:"COTAS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"COTAS_LOG_FORMAT" envDefault:"json"` // json | console
}

// Load lê os arquivos .env indicados (ou ./.env, se existir) e depois as variáveis COTAS_*.
// Variáveis já presentes no ambiente têm precedência sobre o arquivo.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("falha ao ler .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("falha ao ler variáveis de ambiente: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate confere as combinações de opções.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("COTAS_DB_DRIVER inválido: %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("COTAS_DB_DSN é obrigatório")
	}

	switch c.Network {
	case "loopback":
		if c.GenesisID == "" {
			return errors.New("COTAS_GENESIS_ID é obrigatório na rede loopback")
		}
	case "solana":
		if c.SolanaRPCURL == "" {
			return errors.New("COTAS_SOLANA_RPC_URL é obrigatório na rede solana")
		}
		if _, err := solana.PrivateKeyFromBase58(c.SolanaFeePayerKey); err != nil {
			return fmt.Errorf("COTAS_SOLANA_FEE_PAYER_KEY inválida: %w", err)
		}
	default:
		return fmt.Errorf("COTAS_NETWORK inválida: %q", c.Network)
	}
	if c.ValidityWindow == 0 {
		return errors.New("COTAS_VALIDITY_WINDOW deve ser maior que zero")
	}
	if c.Escrow != "" {
		if _, err := solana.PublicKeyFromBase58(c.Escrow); err != nil {
			return fmt.Errorf("COTAS_ESCROW inválido: %w", err)
		}
	}

	switch c.Signer {
	case "none":
	case "local":
		if _, err := solana.PrivateKeyFromBase58(c.SignerKey); err != nil {
			return fmt.Errorf("COTAS_SIGNER_KEY inválida: %w", err)
		}
	case "remote":
		if c.WalletURL == "" {
			return errors.New("COTAS_WALLET_URL é obrigatório com assinante remoto")
		}
	default:
		return fmt.Errorf("COTAS_SIGNER inválido: %q", c.Signer)
	}

	if c.ConnectTimeout < 0 || c.SignTimeout < 0 || c.SubmitTimeout < 0 {
		return errors.New("prazos não podem ser negativos")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("COTAS_LOG_LEVEL inválido: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("COTAS_LOG_FORMAT inválido: %q", c.LogFormat)
	}
	return nil
}

// Logger monta o logger zap conforme nível e formato configurados.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
