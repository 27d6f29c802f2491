package models

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidCRMState      = errors.New("invalid crm state")
	ErrNoCustomerID         = errors.New("no stripe customer id")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrPlanRequired         = errors.New("crm integration requires business plan")
	ErrCRMNotConnected      = errors.New("crm not connected")
	ErrMissingAction        = errors.New("action is required")
	ErrInvalidAction        = errors.New("invalid action")
	ErrMissingInvoiceID     = errors.New("invoice id is required")
)
