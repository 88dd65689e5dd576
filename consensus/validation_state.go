package consensus

import "errors"

// ValidationState records the first rejection reason hit while checking a
// transaction. The zero value is valid.
type ValidationState struct {
	code ErrorCode
	msg  string
}

// Invalid records code/msg unless a reason is already set, and returns false
// so checks can `return state.Invalid(...)`.
func (s *ValidationState) Invalid(code ErrorCode, msg string) bool {
	if s.code == "" {
		s.code = code
		s.msg = msg
	}
	return false
}

func (s *ValidationState) IsValid() bool { return s.code == "" }

func (s *ValidationState) Code() ErrorCode { return s.code }

func (s *ValidationState) Reason() string { return s.msg }

func (s *ValidationState) Class() ErrorClass { return s.code.Class() }

func (s *ValidationState) DoS() int { return s.code.DoS() }

// Err returns the recorded reason as a *TxError, or nil.
func (s *ValidationState) Err() error {
	if s.code == "" {
		return nil
	}
	return &TxError{Code: s.code, Msg: s.msg}
}

// invalidErr records err, keeping the code of a wrapped *TxError and
// falling back to code otherwise.
func (s *ValidationState) invalidErr(code ErrorCode, err error) bool {
	var te *TxError
	if errors.As(err, &te) {
		code = te.Code
	}
	return s.Invalid(code, err.Error())
}
