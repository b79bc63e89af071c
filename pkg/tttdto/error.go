package tttdto

// DomainError is the transport view of an engine failure. Silent errors are
// dropped by transports without a reply.
type DomainError struct {
	Code    string
	Message string
	Silent  bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "tictactoe error"
}
