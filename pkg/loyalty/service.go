package loyalty

import (
	"context"
	"crypto/rand"
	"fmt"
)

// Service contains the domain logic over a Store and the two upstream APIs.
// Each exported method is an independent stateless request; no in-process
// state is shared between invocations.
type Service struct {
	store        Store
	square       SquareAPI
	shopify      ShopifyAPI
	programID    string
	nowFn        func() int64
	logger       OperationLogger
	generateCode func() (string, error)
}

// NewService wires a Service.
func NewService(store Store, square SquareAPI, shopify ShopifyAPI, programID string, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if square == nil {
		return nil, fmt.Errorf("%w: square dependency is nil", ErrInvalidServiceConfig)
	}
	if shopify == nil {
		return nil, fmt.Errorf("%w: shopify dependency is nil", ErrInvalidServiceConfig)
	}
	if programID == "" {
		return nil, fmt.Errorf("%w: program id is required", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:        store,
		square:       square,
		shopify:      shopify,
		programID:    programID,
		nowFn:        now,
		generateCode: newDiscountCode,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

const discountCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newDiscountCode() (string, error) {
	buffer := make([]byte, discountCodeLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("discount code entropy: %w", err)
	}
	code := make([]byte, discountCodeLength)
	for index, value := range buffer {
		code[index] = discountCodeAlphabet[int(value)%len(discountCodeAlphabet)]
	}
	return DiscountCodePrefix + string(code), nil
}
