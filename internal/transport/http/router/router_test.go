package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/suite"

	accounthandler "formalitys/internal/account/handler"
	accountservice "formalitys/internal/account/service"
	accountstore "formalitys/internal/account/store"
	"formalitys/internal/audit"
	dossierhandler "formalitys/internal/dossier/handler"
	dossierservice "formalitys/internal/dossier/service"
	dossierstore "formalitys/internal/dossier/store"
	"formalitys/internal/jwttoken"
	"formalitys/internal/ledger"
	"formalitys/internal/payment"
	paymenthandler "formalitys/internal/payment/handler"
	"formalitys/internal/platform/logger"
	"formalitys/internal/transport/http/router"
)

const webhookSecret = "test-webhook-secret"

type RouterSuite struct {
	suite.Suite
	server *httptest.Server
	token  string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	log := logger.New()
	tokens := jwttoken.NewService("test-signing-key", "formalitys", "formalitys-api")
	dossiers := dossierstore.NewInMemory()
	auditPublisher := audit.NewPublisher(audit.NewInMemoryStore())

	accountSvc := accountservice.New(accountstore.NewInMemory(), tokens)
	dossierSvc := dossierservice.New(dossiers, dossierservice.WithAuditPublisher(auditPublisher))
	ledgerSvc := ledger.New(dossiers, ledger.NewInMemoryStorage())
	paymentSvc := payment.New(dossiers, payment.NewFakeGateway(),
		payment.WithAuditPublisher(auditPublisher))

	s.server = httptest.NewServer(router.New(router.Deps{
		Accounts:  accounthandler.New(accountSvc, log),
		Dossiers:  dossierhandler.New(dossierSvc, ledgerSvc, log),
		Payments:  paymenthandler.New(paymentSvc, webhookSecret, log),
		Validator: tokens,
		Logger:    log,
	}))
	s.T().Cleanup(s.server.Close)

	s.postJSON("/auth/register", map[string]any{
		"email": "owner@example.ma", "password": "correct-horse-battery",
	}, http.StatusCreated, "")
	var login struct {
		Token string `json:"token"`
	}
	s.postJSON("/auth/login", map[string]any{
		"email": "owner@example.ma", "password": "correct-horse-battery",
	}, http.StatusOK, "", &login)
	s.token = login.Token
}

func (s *RouterSuite) postJSON(path string, body any, wantStatus int, token string, out ...any) {
	s.T().Helper()
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(raw))
	s.Require().NoError(err)
	s.do(req, wantStatus, token, out...)
}

func (s *RouterSuite) putJSON(path string, body any, wantStatus int, token string, out ...any) {
	s.T().Helper()
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	req, err := http.NewRequest(http.MethodPut, s.server.URL+path, bytes.NewReader(raw))
	s.Require().NoError(err)
	s.do(req, wantStatus, token, out...)
}

func (s *RouterSuite) get(path string, wantStatus int, token string, out ...any) {
	s.T().Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	s.Require().NoError(err)
	s.do(req, wantStatus, token, out...)
}

func (s *RouterSuite) do(req *http.Request, wantStatus int, token string, out ...any) {
	s.T().Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().Equal(wantStatus, resp.StatusCode, "body: %s", payload)
	if len(out) > 0 {
		s.Require().NoError(json.Unmarshal(payload, out[0]))
	}
}

type dossierResponse struct {
	ID          string         `json:"id"`
	CurrentStep int            `json:"current_step"`
	Status      string         `json:"status"`
	FormData    map[string]any `json:"form_data"`
	Documents   []struct {
		DocumentType string `json:"document_type"`
		OriginalName string `json:"original_name"`
	} `json:"documents"`
}

func (s *RouterSuite) createDossier(procedureType string) dossierResponse {
	s.T().Helper()
	var d dossierResponse
	s.postJSON("/dossiers", map[string]any{"procedure_type": procedureType}, http.StatusCreated, s.token, &d)
	return d
}

func (s *RouterSuite) TestAuthRequired() {
	s.get("/dossiers", http.StatusUnauthorized, "")
	s.postJSON("/dossiers", map[string]any{"procedure_type": "COMPANY"}, http.StatusUnauthorized, "")
}

func (s *RouterSuite) TestCreateAndListDossiers() {
	d := s.createDossier("COMPANY")
	s.Equal(1, d.CurrentStep)
	s.Equal("DRAFT", d.Status)

	var listed []dossierResponse
	s.get("/dossiers", http.StatusOK, s.token, &listed)
	s.Require().Len(listed, 1)
	s.Equal(d.ID, listed[0].ID)
}

func (s *RouterSuite) TestSaveStepValidationEnvelope() {
	d := s.createDossier("COMPANY")

	req, err := http.NewRequest(http.MethodPut,
		s.server.URL+"/dossiers/"+d.ID+"/steps/1",
		bytes.NewReader([]byte(`{"data":{"companyName":"Atlas"}}`)))
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Code    string   `json:"code"`
		Reasons []string `json:"reasons"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("validation", body.Code)
	s.Contains(body.Reasons, "legalForm is required")
}

func (s *RouterSuite) TestSaveStepAdvances() {
	d := s.createDossier("COMPANY")

	var updated dossierResponse
	s.putJSON("/dossiers/"+d.ID+"/steps/1", map[string]any{
		"data": map[string]any{
			"companyName":         "Atlas Ventures SARL",
			"legalForm":           "SARL",
			"activitySector":      "consulting",
			"capital":             100000,
			"headquartersAddress": "12 Rue des Almohades",
			"headquartersCity":    "Casablanca",
			"contactPhone":        "+212 600-112233",
			"contactEmail":        "contact@atlas.ma",
		},
	}, http.StatusOK, s.token, &updated)
	s.Equal(2, updated.CurrentStep)
}

func (s *RouterSuite) TestDocumentUploadRoundTrip() {
	d := s.createDossier("COMPANY")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="identity_document"; filename="cin.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	s.Require().NoError(err)
	_, err = part.Write([]byte("%PDF-1.7 test"))
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/dossiers/"+d.ID+"/documents", &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	var updated dossierResponse
	s.do(req, http.StatusCreated, s.token, &updated)
	s.Require().Len(updated.Documents, 1)
	s.Equal("identity_document", updated.Documents[0].DocumentType)

	var docs []map[string]any
	s.get("/dossiers/"+d.ID+"/documents?type=identity_document", http.StatusOK, s.token, &docs)
	s.Len(docs, 1)
}

func (s *RouterSuite) TestQuoteAndIntentGating() {
	d := s.createDossier("COMPANY")

	var quote struct {
		FinalPrice int64  `json:"final_price"`
		Currency   string `json:"currency"`
	}
	s.get("/dossiers/"+d.ID+"/payment/quote", http.StatusOK, s.token, &quote)
	s.Equal(int64(330000), quote.FinalPrice)
	s.Equal("MAD", quote.Currency)

	s.postJSON("/dossiers/"+d.ID+"/payment/intent", map[string]any{}, http.StatusConflict, s.token)
}

func (s *RouterSuite) TestWebhookRejectsBadSecret() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/payments/webhook",
		bytes.NewReader([]byte(`{"reference":"pi_x","succeeded":true}`)))
	s.Require().NoError(err)
	req.Header.Set("X-Webhook-Secret", "wrong")
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestWebhookUnknownReference() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/payments/webhook",
		bytes.NewReader([]byte(`{"reference":"pi_unknown","succeeded":true}`)))
	s.Require().NoError(err)
	req.Header.Set("X-Webhook-Secret", webhookSecret)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestAdminOverrideForbiddenForOwners() {
	d := s.createDossier("COMPANY")
	s.postJSON(fmt.Sprintf("/admin/dossiers/%s/override", d.ID),
		map[string]any{"status": "PAID"}, http.StatusForbidden, s.token)
}

func (s *RouterSuite) TestHealthRouteAbsentWithoutHandler() {
	s.get("/healthz", http.StatusNotFound, "")
}
