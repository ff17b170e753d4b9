package e2e

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"templeseva/internal/config"
	"templeseva/internal/database"
	"templeseva/internal/domain"
	"templeseva/internal/gateway"
	"templeseva/internal/middleware"
	"templeseva/internal/modules/fulfillment"
	"templeseva/internal/modules/payment"
	jwtsvc "templeseva/internal/pkg/jwt"
	"templeseva/internal/repository"
)

const (
	e2eKeySecret     = "e2e_key_secret"
	e2eWebhookSecret = "e2e_webhook_secret"
)

type E2ETestSuite struct {
	router      *gin.Engine
	db          *gorm.DB
	jwtService  *jwtsvc.Service
	gatewaySrv  *httptest.Server
	orderSeq    atomic.Int64
	testCleanup func()
}

type TestResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *ErrorDetail           `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func setupTestSuite(t *testing.T) *E2ETestSuite {
	db, err := database.Connect(fmt.Sprintf("file:e2e_%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, database.Migrate(db), "Failed to migrate test database")

	suite := &E2ETestSuite{db: db}

	// Fake gateway: accepts order creation the way the real one would.
	suite.gatewaySrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"order_e2e_%d","amount":%d,"currency":%q,"receipt":%q,"status":"created"}`,
			suite.orderSeq.Add(1), body.Amount, body.Currency, body.Receipt)
	}))

	cfg := &config.PaymentRuntimeConfig{
		AppEnv:            "test",
		GatewayBaseURL:    suite.gatewaySrv.URL,
		GatewayKeyID:      "rzp_test_e2e",
		GatewayKeySecret:  e2eKeySecret,
		WebhookSecret:     e2eWebhookSecret,
		GatewayTimeout:    5 * time.Second,
		AllowedCurrencies: []string{"INR"},
		PendingTimeout:    30 * time.Minute,
		SweepBatchSize:    50,
		MaxSweeps:         48,
	}

	recordRepo := repository.NewPaymentRecordRepository(db)
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)
	fulfillmentSvc := fulfillment.NewService(db, nil)
	hub := payment.NewStatusHub()

	paymentSvc := payment.NewService(recordRepo, gatewayClient, fulfillmentSvc, hub, cfg, nil)
	webhookProc, err := payment.NewWebhookProcessor(recordRepo, paymentSvc, cfg.WebhookSecret, nil)
	require.NoError(t, err, "Failed to build webhook processor")
	paymentHandler := payment.NewHandler(paymentSvc, webhookProc, hub, nil)

	jwtService := jwtsvc.New("test_secret_key_32_characters_min", 24*time.Hour)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	paymentHandler.RegisterPublicRoutes(v1)

	protected := v1.Group("")
	protected.Use(middleware.Auth(jwtService))
	paymentHandler.RegisterProtectedRoutes(protected)

	suite.router = r
	suite.jwtService = jwtService
	suite.testCleanup = func() {
		suite.gatewaySrv.Close()
	}
	return suite
}

func (s *E2ETestSuite) makeRequest(method, path string, body interface{}, token string) (*httptest.ResponseRecorder, error) {
	var bodyBytes []byte
	var err error

	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	return w, nil
}

func (s *E2ETestSuite) postWebhook(rawBody []byte, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewReader(rawBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", signHex(rawBody, secret))

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func signHex(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) *TestResponse {
	var resp TestResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Failed to parse response. Status: %d, Body: %s", w.Code, w.Body.String())
	return &resp
}

func capturedWebhookBody(orderID, paymentID string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":"captured","amount":%d,"currency":"INR"}}}}`,
		paymentID, orderID, amount))
}

// beginCheckout drives POST /payments/checkout and returns record and order ids.
func (s *E2ETestSuite) beginCheckout(t *testing.T, token string, amount int64, purpose, subjectRef string) (string, string) {
	reqBody := map[string]interface{}{
		"amount_minor_units": amount,
		"currency":           "INR",
		"purpose":            purpose,
		"subject_ref":        subjectRef,
	}
	w, err := s.makeRequest("POST", "/api/v1/payments/checkout", reqBody, token)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, w.Code, "checkout failed: %s", w.Body.String())

	resp := parseResponse(t, w)
	require.True(t, resp.Success)
	return resp.Data["record_id"].(string), resp.Data["external_order_id"].(string)
}

func TestFlow1_CheckoutToCapturedViaWebhook(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.testCleanup()

	token, err := suite.jwtService.GenerateToken(101)
	require.NoError(t, err)

	recordID, orderID := suite.beginCheckout(t, token, 50000, "event-registration", "janmashtami-2026")

	t.Run("GET /payments/:id shows pending", func(t *testing.T) {
		w, err := suite.makeRequest("GET", "/api/v1/payments/"+recordID, nil, token)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, w.Code)

		resp := parseResponse(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "pending", resp.Data["status"])
		assert.Equal(t, orderID, resp.Data["external_order_id"])
	})

	t.Run("POST /payments/webhook captures", func(t *testing.T) {
		w := suite.postWebhook(capturedWebhookBody(orderID, "pay_e2e_1", 50000), e2eWebhookSecret)
		assert.Equal(t, http.StatusOK, w.Code)

		resp := parseResponse(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "applied", resp.Data["outcome"])
	})

	t.Run("Record is captured and registration exists", func(t *testing.T) {
		w, err := suite.makeRequest("GET", "/api/v1/payments/"+recordID, nil, token)
		require.NoError(t, err)
		resp := parseResponse(t, w)
		assert.Equal(t, "captured", resp.Data["status"])

		var reg domain.Registration
		err = suite.db.Where("record_id = ?", recordID).First(&reg).Error
		require.NoError(t, err, "registration must exist after capture")
		assert.Equal(t, "janmashtami-2026", reg.EventRef)
	})

	t.Run("Duplicate webhook is acknowledged without side effects", func(t *testing.T) {
		w := suite.postWebhook(capturedWebhookBody(orderID, "pay_e2e_1", 50000), e2eWebhookSecret)
		assert.Equal(t, http.StatusOK, w.Code)

		resp := parseResponse(t, w)
		assert.Equal(t, "duplicate", resp.Data["outcome"])

		var count int64
		suite.db.Model(&domain.Registration{}).Where("record_id = ?", recordID).Count(&count)
		assert.EqualValues(t, 1, count, "registration must not be duplicated")
	})

	t.Run("GET /payments/:id/events shows the audit trail", func(t *testing.T) {
		w, err := suite.makeRequest("GET", "/api/v1/payments/"+recordID+"/events", nil, token)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, w.Code)
		// Two webhook deliveries, both on the trail.
		assert.Contains(t, w.Body.String(), `"applied"`)
		assert.Contains(t, w.Body.String(), `"duplicate"`)
	})
}

func TestFlow2_CallbackCapture(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.testCleanup()

	token, err := suite.jwtService.GenerateToken(102)
	require.NoError(t, err)

	recordID, orderID := suite.beginCheckout(t, token, 10100, "donation", "devotee-42")

	t.Run("POST /payments/callback with valid signature", func(t *testing.T) {
		cbBody := map[string]interface{}{
			"external_order_id":   orderID,
			"external_payment_id": "pay_cb_e2e",
			"signature":           signHex([]byte(orderID+"|pay_cb_e2e"), e2eKeySecret),
		}
		w, err := suite.makeRequest("POST", "/api/v1/payments/callback", cbBody, "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, w.Code, "callback failed: %s", w.Body.String())
	})

	t.Run("Capture landed and donation is ledgered", func(t *testing.T) {
		w, err := suite.makeRequest("GET", "/api/v1/payments/"+recordID, nil, token)
		require.NoError(t, err)
		resp := parseResponse(t, w)
		assert.Equal(t, "captured", resp.Data["status"])

		var entry domain.DonationEntry
		err = suite.db.Where("record_id = ?", recordID).First(&entry).Error
		require.NoError(t, err, "donation entry must exist after capture")
		assert.EqualValues(t, 10100, entry.AmountMinorUnits)
	})
}

func TestFlow3_ForgedNotificationsRejected(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.testCleanup()

	token, err := suite.jwtService.GenerateToken(103)
	require.NoError(t, err)

	recordID, orderID := suite.beginCheckout(t, token, 50000, "donation", "devotee-9")

	t.Run("Forged webhook gets 401", func(t *testing.T) {
		w := suite.postWebhook(capturedWebhookBody(orderID, "pay_evil", 50000), "wrong secret")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		resp := parseResponse(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "REJECTED", resp.Error.Code)
	})

	t.Run("Forged callback gets 401", func(t *testing.T) {
		cbBody := map[string]interface{}{
			"external_order_id":   orderID,
			"external_payment_id": "pay_evil",
			"signature":           "deadbeef",
		}
		w, err := suite.makeRequest("POST", "/api/v1/payments/callback", cbBody, "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Tampered amount gets 401 and flags the record", func(t *testing.T) {
		w := suite.postWebhook(capturedWebhookBody(orderID, "pay_evil", 1), e2eWebhookSecret)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var rec domain.PaymentRecord
		require.NoError(t, suite.db.First(&rec, "id = ?", recordID).Error)
		assert.True(t, rec.FlaggedForReview)
	})

	t.Run("Record is still pending", func(t *testing.T) {
		w, err := suite.makeRequest("GET", "/api/v1/payments/"+recordID, nil, token)
		require.NoError(t, err)
		resp := parseResponse(t, w)
		assert.Equal(t, "pending", resp.Data["status"])
	})
}

func TestFlow4_AuthAndValidation(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.testCleanup()

	token, err := suite.jwtService.GenerateToken(104)
	require.NoError(t, err)

	t.Run("Checkout without token gets 401", func(t *testing.T) {
		reqBody := map[string]interface{}{
			"amount_minor_units": 100, "currency": "INR", "purpose": "donation", "subject_ref": "x",
		}
		w, err := suite.makeRequest("POST", "/api/v1/payments/checkout", reqBody, "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Checkout with bad currency gets 400", func(t *testing.T) {
		reqBody := map[string]interface{}{
			"amount_minor_units": 100, "currency": "USD", "purpose": "donation", "subject_ref": "x",
		}
		w, err := suite.makeRequest("POST", "/api/v1/payments/checkout", reqBody, token)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		resp := parseResponse(t, w)
		assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
	})

	t.Run("Unknown record gets 404", func(t *testing.T) {
		w, err := suite.makeRequest("GET", "/api/v1/payments/does-not-exist", nil, token)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Cancel after order creation is rejected", func(t *testing.T) {
		recordID, _ := suite.beginCheckout(t, token, 100, "donation", "x")
		// Pending records are no longer cancellable on this surface.
		w, err := suite.makeRequest("POST", "/api/v1/payments/"+recordID+"/cancel", nil, token)
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}
