// Package apperrors define a taxonomia de erros do sistema: cada erro tem uma classe
// (validação, conflito de estado, rejeição externa, protocolo) e um código estável.
package apperrors

import (
	"errors"
	"fmt"
)

// Class agrupa erros pela política de propagação.
type Class int

const (
	ClassInternal Class = iota
	// ClassValidation: entrada inválida, rejeitada antes de tocar no estado.
	ClassValidation
	// ClassStateConflict: rejeitado depois de checar o estado atual; o estado fica intacto.
	ClassStateConflict
	// ClassExternalRejection: assinante ou rede recusou; nenhuma mutação ocorreu. Pode ser repetido.
	ClassExternalRejection
	// ClassProtocol: envelope malformado ou truncado.
	ClassProtocol
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassStateConflict:
		return "state_conflict"
	case ClassExternalRejection:
		return "external_rejection"
	case ClassProtocol:
		return "protocol"
	default:
		return "internal"
	}
}

// Error é o erro de domínio com metadados estruturados.
type Error struct {
	Class   Class
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap devolve a causa para percorrer a cadeia de erros.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is compara pelo código, de modo que errors.Is(err, ErrOversold) funcione
// mesmo quando a mensagem foi enriquecida.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// New cria um erro de domínio simples.
func New(class Class, code Code, message string) *Error {
	return &Error{Class: class, Code: code, Message: message}
}

// Newf cria um erro a partir de um erro sentinela com uma mensagem mais específica.
func Newf(base *Error, format string, args ...any) *Error {
	return &Error{Class: base.Class, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap cria um erro do mesmo código de base que embrulha uma causa.
func Wrap(base *Error, cause error) *Error {
	return &Error{Class: base.Class, Code: base.Code, Message: base.Message, Cause: cause}
}

// ClassOf devolve a classe do primeiro erro de domínio na cadeia, ou ClassInternal.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassInternal
}

// CodeOf devolve o código do primeiro erro de domínio na cadeia, ou CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Retryable informa se a mesma ação pode ser tentada de novo com segurança.
func Retryable(err error) bool {
	return ClassOf(err) == ClassExternalRejection
}
