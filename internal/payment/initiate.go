package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mowaa/booking-payments/internal/common"
	"github.com/mowaa/booking-payments/internal/gateway"
	"github.com/mowaa/booking-payments/internal/obs"
)

const (
	maxAttachmentSize  = 5 << 20
	maxMultipartMemory = 10 << 20
)

var allowedAttachmentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// AttachmentStore persists uploaded booking documents and returns a stable URL.
type AttachmentStore interface {
	Upload(ctx context.Context, filename, contentType string, file multipart.File, size int64) (string, error)
}

// Initializer opens a transaction with the payment gateway.
type Initializer interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
}

// Creator inserts new payments.
type Creator interface {
	Create(ctx context.Context, p *Payment) error
}

// Initiator handles POST /api/initiate-payment. It validates the booking form,
// stores attachments, opens the gateway transaction and persists the pending
// payment, in that order; nothing is persisted when the gateway refuses.
type Initiator struct {
	Store       Creator
	Gateway     Initializer
	Uploads     AttachmentStore
	CallbackURL string
	Currency    string
	Validate    *validator.Validate
	Logger      zerolog.Logger
}

type bookingForm struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type initiateRequest struct {
	FormData    map[string]any  `json:"formData"`
	CartItems   json.RawMessage `json:"cartItems"`
	TotalAmount float64         `json:"totalAmount"`
	Currency    string          `json:"currency"`
}

func (h *Initiator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		recordInitiate("bad_request")
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	form := bookingForm{
		Name:  stringField(req.FormData, "name"),
		Email: stringField(req.FormData, "email"),
	}
	if err := h.Validate.Struct(form); err != nil {
		recordInitiate("validation_failed")
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "booking form is incomplete", validationDetails(err))
		return
	}
	if req.TotalAmount <= 0 {
		recordInitiate("validation_failed")
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "totalAmount must be positive", nil)
		return
	}

	if err := h.storeAttachments(r, req.FormData); err != nil {
		recordInitiate("upload_failed")
		common.JSONError(w, http.StatusBadRequest, "UPLOAD_FAILED", err.Error(), nil)
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = h.Currency
	}
	reference := newReference()

	result, err := h.Gateway.Initialize(r.Context(), gateway.InitializeRequest{
		Email:       form.Email,
		AmountMinor: gateway.MinorUnits(req.TotalAmount),
		Currency:    currency,
		Reference:   reference,
		CallbackURL: h.CallbackURL,
		Metadata: map[string]any{
			"customer_name": form.Name,
		},
	})
	if err != nil {
		recordInitiate("gateway_failed")
		h.Logger.Error().Err(err).Str("reference", reference).Msg("initiate_gateway_failed")
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_INIT_FAILED", "could not initialise payment", nil)
		return
	}
	if result.Reference != "" {
		reference = result.Reference
	}

	formJSON, err := json.Marshal(req.FormData)
	if err != nil {
		recordInitiate("error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not persist booking form", nil)
		return
	}
	cartJSON := req.CartItems
	if len(cartJSON) == 0 {
		cartJSON = json.RawMessage("[]")
	}

	p := &Payment{
		Reference:   reference,
		Status:      StatusPending,
		FormData:    formJSON,
		CartItems:   cartJSON,
		TotalAmount: req.TotalAmount,
		Currency:    currency,
	}
	if err := h.Store.Create(r.Context(), p); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			recordInitiate("duplicate")
			common.Render(w, common.NewAppError("DUPLICATE_REFERENCE", "a payment with this reference already exists", http.StatusConflict, err))
			return
		}
		recordInitiate("error")
		h.Logger.Error().Err(err).Str("reference", reference).Msg("initiate_persist_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not persist payment", nil)
		return
	}

	recordInitiate("ok")
	common.JSON(w, http.StatusOK, map[string]any{
		"url":       result.AuthorizationURL,
		"reference": reference,
	})
}

func (h *Initiator) parseRequest(r *http.Request) (*initiateRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		req := &initiateRequest{Currency: r.FormValue("currency")}
		if raw := r.FormValue("formData"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.FormData); err != nil {
				return nil, errors.New("formData must be a JSON object")
			}
		}
		if raw := r.FormValue("cartItems"); raw != "" {
			if !json.Valid([]byte(raw)) {
				return nil, errors.New("cartItems must be valid JSON")
			}
			req.CartItems = json.RawMessage(raw)
		}
		if raw := r.FormValue("totalAmount"); raw != "" {
			amount, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, errors.New("totalAmount must be a number")
			}
			req.TotalAmount = amount
		}
		if req.FormData == nil {
			req.FormData = map[string]any{}
		}
		return req, nil
	}

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("request body must be valid JSON")
	}
	if req.FormData == nil {
		req.FormData = map[string]any{}
	}
	return &req, nil
}

// storeAttachments uploads each multipart file and records its URL in the form
// data under "<field>Url". JSON requests carry no files and pass straight
// through.
func (h *Initiator) storeAttachments(r *http.Request, form map[string]any) error {
	if h.Uploads == nil || r.MultipartForm == nil {
		return nil
	}
	for field, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		header := headers[0]
		if header.Size > maxAttachmentSize {
			return fmt.Errorf("%s exceeds the 5MB attachment limit", field)
		}
		contentType := header.Header.Get("Content-Type")
		if _, ok := allowedAttachmentTypes[contentType]; !ok {
			return fmt.Errorf("%s has unsupported type %s", field, contentType)
		}
		file, err := header.Open()
		if err != nil {
			return fmt.Errorf("could not read %s", field)
		}
		url, err := h.Uploads.Upload(r.Context(), header.Filename, contentType, file, header.Size)
		_ = file.Close()
		if err != nil {
			h.Logger.Error().Err(err).Str("field", field).Msg("attachment_upload_failed")
			return fmt.Errorf("could not store %s", field)
		}
		form[field+"Url"] = url
	}
	return nil
}

func stringField(form map[string]any, key string) string {
	if v, ok := form[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return fields
}

func newReference() string {
	return "BK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:20])
}

func recordInitiate(result string) {
	if obs.PaymentInitiateTotal == nil {
		return
	}
	obs.PaymentInitiateTotal.WithLabelValues(result).Inc()
}
