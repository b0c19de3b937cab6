package loyalty

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing loyalty operation.
type OperationLog struct {
	Operation    string
	ProfileID    string
	AccountID    string
	RewardID     string
	DiscountCode string
	Points       int64
	Status       string
	Error        error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithDiscountCodeGenerator overrides discount-code generation (tests).
func WithDiscountCodeGenerator(generate func() (string, error)) ServiceOption {
	return func(service *Service) {
		service.generateCode = generate
	}
}
