package payment

type BeginCheckoutRequest struct {
	AmountMinorUnits int64  `json:"amount_minor_units" binding:"required" validate:"gt=0" example:"50000"`
	Currency         string `json:"currency" binding:"required" validate:"len=3" example:"INR"`
	Purpose          string `json:"purpose" binding:"required" example:"donation"`
	SubjectRef       string `json:"subject_ref" binding:"required" example:"event-1"`
}

type BeginCheckoutResponse struct {
	RecordID         string `json:"record_id" example:"7f4ae7d8-0d8e-4f52-9c1a-0a2b3c4d5e6f"`
	ExternalOrderID  string `json:"external_order_id" example:"order_NXhj4aBcDeFgHi"`
	AmountMinorUnits int64  `json:"amount_minor_units" example:"50000"`
	Currency         string `json:"currency" example:"INR"`
	GatewayKeyID     string `json:"gateway_key_id" example:"rzp_test_abc123"`
}

type CallbackRequest struct {
	ExternalOrderID   string `json:"external_order_id" form:"external_order_id" binding:"required"`
	ExternalPaymentID string `json:"external_payment_id" form:"external_payment_id" binding:"required"`
	Signature         string `json:"signature" form:"signature" binding:"required"`
}

type StatusResponse struct {
	RecordID         string `json:"record_id"`
	Status           string `json:"status"`
	ExternalOrderID  string `json:"external_order_id,omitempty"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
	Purpose          string `json:"purpose"`
	SubjectRef       string `json:"subject_ref"`
	FailureReason    string `json:"failure_reason,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error" example:"invalid request"`
}

// webhookEnvelope mirrors the gateway's notification body.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				AmountMinorUnits int64  `json:"amount"`
				Currency         string `json:"currency"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}
