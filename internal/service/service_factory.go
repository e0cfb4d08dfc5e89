package service

import (
	"sync"

	"cash-settlement-service/internal/config"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps Dependencies
	cfg  config.SettlementConfig

	once               sync.Once
	cashPaymentService *CashPaymentService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(deps Dependencies, cfg config.SettlementConfig) *ServiceFactory {
	return &ServiceFactory{deps: deps, cfg: cfg}
}

// CashPaymentService returns the cash payment service instance (singleton)
func (f *ServiceFactory) CashPaymentService() *CashPaymentService {
	f.once.Do(func() {
		f.cashPaymentService = NewCashPaymentService(f.deps, f.cfg)
	})
	return f.cashPaymentService
}

// Cleanup waits for in-flight notifications
func (f *ServiceFactory) Cleanup() {
	if f.cashPaymentService != nil {
		f.cashPaymentService.dispatcher.Wait()
	}
}
