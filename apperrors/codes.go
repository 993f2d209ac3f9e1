package apperrors

// Code é um código de erro legível por máquina.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Validação
	CodeInvalidSpec       Code = "INVALID_SPEC"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInvalidUnits      Code = "INVALID_UNITS"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeInvalidIntent     Code = "INVALID_INTENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeOverflow          Code = "OVERFLOW"

	// Conflitos de estado
	CodeOversold          Code = "OVERSOLD"
	CodeNotPurchasable    Code = "NOT_PURCHASABLE"
	CodeNothingToClaim    Code = "NOTHING_TO_CLAIM"
	CodeNotDistributable  Code = "NOT_DISTRIBUTABLE"
	CodeAlreadyVoted      Code = "ALREADY_VOTED"
	CodeVotingClosed      Code = "VOTING_CLOSED"
	CodeTooEarly          Code = "TOO_EARLY"
	CodeNotHolder         Code = "NOT_HOLDER"
	CodeProposalNotPassed Code = "PROPOSAL_NOT_PASSED"
	CodeAlreadyApplied    Code = "ALREADY_APPLIED"
	CodeEnvelopeExpired   Code = "ENVELOPE_EXPIRED"

	// Rejeições externas
	CodeConnectionRejected Code = "CONNECTION_REJECTED"
	CodeConnectionTimeout  Code = "CONNECTION_TIMEOUT"
	CodeSigningRejected    Code = "SIGNING_REJECTED"
	CodeSigningTimeout     Code = "SIGNING_TIMEOUT"
	CodeSigningCancelled   Code = "SIGNING_CANCELLED"
	CodeSignatureMismatch  Code = "SIGNATURE_MISMATCH"
	CodeNetworkRejected    Code = "NETWORK_REJECTED"
	CodeSubmitTimeout      Code = "SUBMIT_TIMEOUT"

	// Protocolo
	CodeMalformedEnvelope Code = "MALFORMED_ENVELOPE"
)

// Erros sentinela, comparáveis com errors.Is.
var (
	ErrInvalidSpec       = New(ClassValidation, CodeInvalidSpec, "especificação de ativo inválida")
	ErrInvalidTransition = New(ClassValidation, CodeInvalidTransition, "transição de estado inválida")
	ErrInvalidUnits      = New(ClassValidation, CodeInvalidUnits, "quantidade de unidades inválida")
	ErrInvalidAmount     = New(ClassValidation, CodeInvalidAmount, "valor inválido")
	ErrInvalidIntent     = New(ClassValidation, CodeInvalidIntent, "intenção inválida")
	ErrNotFound          = New(ClassValidation, CodeNotFound, "registro não encontrado")
	ErrOverflow          = New(ClassValidation, CodeOverflow, "estouro aritmético")

	ErrOversold          = New(ClassStateConflict, CodeOversold, "unidades insuficientes para a compra")
	ErrNotPurchasable    = New(ClassStateConflict, CodeNotPurchasable, "ativo não está aberto para compras")
	ErrNothingToClaim    = New(ClassStateConflict, CodeNothingToClaim, "nada a resgatar")
	ErrNotDistributable  = New(ClassStateConflict, CodeNotDistributable, "ativo não aceita depósitos de renda")
	ErrAlreadyVoted      = New(ClassStateConflict, CodeAlreadyVoted, "detentor já votou nesta proposta")
	ErrVotingClosed      = New(ClassStateConflict, CodeVotingClosed, "votação encerrada")
	ErrTooEarly          = New(ClassStateConflict, CodeTooEarly, "prazo ainda não foi atingido")
	ErrNotHolder         = New(ClassStateConflict, CodeNotHolder, "participante não detém unidades do ativo")
	ErrProposalNotPassed = New(ClassStateConflict, CodeProposalNotPassed, "proposta não foi aprovada")
	ErrAlreadyApplied    = New(ClassStateConflict, CodeAlreadyApplied, "envelope já foi aplicado")
	ErrEnvelopeExpired   = New(ClassStateConflict, CodeEnvelopeExpired, "envelope fora da janela de validade")

	ErrConnectionRejected = New(ClassExternalRejection, CodeConnectionRejected, "conexão recusada pela carteira")
	ErrConnectionTimeout  = New(ClassExternalRejection, CodeConnectionTimeout, "tempo esgotado ao conectar à carteira")
	ErrSigningRejected    = New(ClassExternalRejection, CodeSigningRejected, "assinatura recusada pelo usuário")
	ErrSigningTimeout     = New(ClassExternalRejection, CodeSigningTimeout, "tempo esgotado aguardando assinatura")
	ErrSigningCancelled   = New(ClassExternalRejection, CodeSigningCancelled, "pedido de assinatura cancelado")
	ErrSignatureMismatch  = New(ClassExternalRejection, CodeSignatureMismatch, "assinatura não corresponde ao envelope")
	ErrNetworkRejected    = New(ClassExternalRejection, CodeNetworkRejected, "transação rejeitada pela rede")
	ErrSubmitTimeout      = New(ClassExternalRejection, CodeSubmitTimeout, "tempo esgotado aguardando a rede")

	ErrMalformedEnvelope = New(ClassProtocol, CodeMalformedEnvelope, "envelope malformado")
)
