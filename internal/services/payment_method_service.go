package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"dinepay/internal/gateway"
	"dinepay/internal/models"
)

// PaymentMethodService manages tokenized payment methods and the per-gateway
// customer records they hang off. Card data never touches this service; only
// gateway tokens and display fields do.
type PaymentMethodService struct {
	db       *gorm.DB
	gateways *gateway.Registry
	cache    *RedisCache
}

func NewPaymentMethodService(db *gorm.DB, gateways *gateway.Registry, cache *RedisCache) *PaymentMethodService {
	return &PaymentMethodService{db: db, gateways: gateways, cache: cache}
}

type SaveMethodInput struct {
	CustomerID    uint
	CustomerEmail string
	CustomerName  string
	Gateway       models.Gateway
	Token         string
	SetDefault    bool
}

// SaveMethod ensures a gateway-side customer exists for (customer, gateway),
// tokenizes the method there, and stores the display-safe record. Setting a
// new default clears the previous one in the same transaction.
func (s *PaymentMethodService) SaveMethod(ctx context.Context, in SaveMethodInput) (*models.CustomerPaymentMethod, error) {
	adapter, err := s.gateways.Get(in.Gateway)
	if err != nil {
		return nil, validationErr("gateway", "%v", err)
	}

	gatewayCustomer, err := s.ensureGatewayCustomer(ctx, adapter, in.CustomerID, in.CustomerEmail, in.CustomerName)
	if err != nil {
		return nil, err
	}

	data, err := adapter.SavePaymentMethod(ctx, gatewayCustomer.GatewayCustomerID, in.Token)
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupported) {
			return nil, validationErr("gateway", "%s does not support saved payment methods", in.Gateway)
		}
		return nil, err
	}

	method := models.CustomerPaymentMethod{
		CustomerID:             in.CustomerID,
		Gateway:                in.Gateway,
		GatewayPaymentMethodID: data.GatewayPaymentMethodID,
		GatewayCustomerID:      gatewayCustomer.GatewayCustomerID,
		MethodType:             data.MethodType,
		DisplayName:            data.DisplayName,
		CardBrand:              data.CardBrand,
		CardLastFour:           data.CardLastFour,
		CardExpMonth:           data.CardExpMonth,
		CardExpYear:            data.CardExpYear,
		IsDefault:              in.SetDefault,
		IsActive:               true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.SetDefault {
			if err := tx.Model(&models.CustomerPaymentMethod{}).
				Where("customer_id = ? AND gateway = ? AND is_default = ?", in.CustomerID, in.Gateway, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&method).Error
	})
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// SetDefault swaps the default method for a customer+gateway. A short Redis
// lock keeps two concurrent swaps from leaving two defaults.
func (s *PaymentMethodService) SetDefault(ctx context.Context, customerID, methodID uint) error {
	var method models.CustomerPaymentMethod
	if err := s.db.WithContext(ctx).First(&method, methodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("payment method %d: %w", methodID, ErrNotFound)
		}
		return err
	}
	if method.CustomerID != customerID {
		return fmt.Errorf("payment method %d: %w", methodID, ErrNotFound)
	}

	if s.cache != nil {
		lockKey := fmt.Sprintf("lock:default-method:%d:%s", customerID, method.Gateway)
		ok, err := s.cache.SetNX(ctx, lockKey, 1, 5*time.Second)
		if err == nil && !ok {
			return &ConflictError{Message: "another default change is in progress"}
		}
		defer func() { _ = s.cache.Delete(context.Background(), lockKey) }()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CustomerPaymentMethod{}).
			Where("customer_id = ? AND gateway = ? AND is_default = ?", customerID, method.Gateway, true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&method).Update("is_default", true).Error
	})
}

// ListMethods returns the customer's active saved methods across gateways.
func (s *PaymentMethodService) ListMethods(ctx context.Context, customerID uint) ([]models.CustomerPaymentMethod, error) {
	var methods []models.CustomerPaymentMethod
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND is_active = ?", customerID, true).
		Order("is_default desc, created_at desc").
		Find(&methods).Error
	return methods, err
}

// DeleteMethod detaches the token at the gateway and deactivates the local
// row. Gateway-side detach failures are logged but do not block the local
// deactivation; the token is unusable to us either way.
func (s *PaymentMethodService) DeleteMethod(ctx context.Context, customerID, methodID uint) error {
	var method models.CustomerPaymentMethod
	if err := s.db.WithContext(ctx).First(&method, methodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("payment method %d: %w", methodID, ErrNotFound)
		}
		return err
	}
	if method.CustomerID != customerID {
		return fmt.Errorf("payment method %d: %w", methodID, ErrNotFound)
	}

	if adapter, err := s.gateways.Get(method.Gateway); err == nil {
		if err := adapter.DeletePaymentMethod(ctx, method.GatewayCustomerID, method.GatewayPaymentMethodID); err != nil && !errors.Is(err, gateway.ErrUnsupported) {
			log.Printf("payment method %d: gateway detach failed: %v", methodID, err)
		}
	}

	return s.db.WithContext(ctx).Model(&method).Updates(map[string]interface{}{
		"is_active":  false,
		"is_default": false,
	}).Error
}

// ensureGatewayCustomer returns the gateway-side customer for (customer,
// gateway), creating one on first use.
func (s *PaymentMethodService) ensureGatewayCustomer(ctx context.Context, adapter gateway.Adapter, customerID uint, email, name string) (*models.GatewayCustomer, error) {
	var existing models.GatewayCustomer
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND gateway = ?", customerID, adapter.Name()).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	gatewayID, err := adapter.CreateCustomer(ctx, &gateway.CustomerRequest{Email: email, Name: name})
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupported) {
			return nil, validationErr("gateway", "%s does not support customers", adapter.Name())
		}
		return nil, err
	}

	record := models.GatewayCustomer{
		CustomerID:        customerID,
		Gateway:           adapter.Name(),
		GatewayCustomerID: gatewayID,
		Email:             email,
		Name:              name,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
