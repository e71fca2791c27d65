package payment

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// JobCapture is the only job requested at checkout.
	JobCapture = "CAPTURE"

	dateTimeLayout  = "20060102150405"
	maxClientFields = 3
)

// PurchaseRequest is the input for one checkout attempt.
type PurchaseRequest struct {
	OrderID  int64
	Amount   int64
	Tax      int64
	Currency string
	// ReturnURL and CancelURL fall back to the configured URLs. When both end
	// up equal only the shared return URL is sent.
	ReturnURL    string
	CancelURL    string
	ClientFields []string
}

// PurchaseParams is a signed outbound purchase request.
type PurchaseParams struct {
	AccessKey      string
	OrderID        string
	Amount         int64
	Tax            int64
	Currency       string
	DateTime       string
	ReturnURL      string
	CancelURL      string
	ClientFields   []string
	RetryMax       int
	SessionTimeout time.Duration
	Confirm        bool
	Job            string
	Signature      string

	fields *FieldMap
}

// WireField is one rendered wire parameter.
type WireField struct {
	Code  string
	Value string
}

// NewPurchase builds and signs the purchase parameters for req.
func (p *Processor) NewPurchase(req PurchaseRequest) (*PurchaseParams, error) {
	if req.OrderID <= 0 {
		return nil, &FieldError{Field: KeyOrderID, Err: errors.New("must be positive")}
	}
	if req.Amount <= 0 {
		return nil, &FieldError{Field: KeyAmount, Err: errors.New("must be positive")}
	}
	if req.Tax < 0 {
		return nil, &FieldError{Field: KeyTax, Err: errors.New("must not be negative")}
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, &FieldError{Field: KeyCurrency, Err: errors.New("missing")}
	}
	if len(req.ClientFields) > maxClientFields {
		return nil, &FieldError{
			Field: KeyClientField1,
			Err:   fmt.Errorf("at most %d client fields, got %d", maxClientFields, len(req.ClientFields)),
		}
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = p.returnURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = p.cancelURL
	}
	if returnURL == "" {
		return nil, &FieldError{Field: KeyReturnURL, Err: errors.New("missing")}
	}
	if cancelURL == returnURL {
		cancelURL = ""
	}

	params := &PurchaseParams{
		AccessKey:      p.accessKey,
		OrderID:        p.orderIDs.Build(req.OrderID),
		Amount:         req.Amount,
		Tax:            req.Tax,
		Currency:       req.Currency,
		DateTime:       p.now().Format(dateTimeLayout),
		ReturnURL:      returnURL,
		CancelURL:      cancelURL,
		ClientFields:   append([]string(nil), req.ClientFields...),
		RetryMax:       p.maxRetry,
		SessionTimeout: p.sessionTimeout,
		Confirm:        p.confirmScreen,
		Job:            JobCapture,
		fields:         p.purchaseFields,
	}
	params.Signature = p.signer.Sign(params.signatureFields())
	return params, nil
}

func (pp *PurchaseParams) signatureFields() []string {
	values := pp.semantic()
	out := make([]string, len(PurchaseSignatureOrder))
	for i, key := range PurchaseSignatureOrder {
		out[i] = values[key]
	}
	return out
}

// semantic returns the populated semantic key -> value pairs.
func (pp *PurchaseParams) semantic() map[string]string {
	values := map[string]string{
		KeyAccessKey:      pp.AccessKey,
		KeyOrderID:        pp.OrderID,
		KeyAmount:         strconv.FormatInt(pp.Amount, 10),
		KeyTax:            strconv.FormatInt(pp.Tax, 10),
		KeyCurrency:       pp.Currency,
		KeyDateTime:       pp.DateTime,
		KeyReturnURL:      pp.ReturnURL,
		KeyRetryMax:       strconv.Itoa(pp.RetryMax),
		KeySessionTimeout: strconv.FormatInt(int64(pp.SessionTimeout/time.Second), 10),
		KeyConfirm:        boolFlag(pp.Confirm),
		KeyJob:            pp.Job,
	}
	if pp.Signature != "" {
		values[KeySignature] = pp.Signature
	}
	if pp.CancelURL != "" {
		values[KeyCancelURL] = pp.CancelURL
	}
	for i, v := range pp.ClientFields {
		values[clientFieldKeys[i]] = v
	}
	return values
}

// WireFields renders the params through the purchase field map, sorted by code.
func (pp *PurchaseParams) WireFields() []WireField {
	values := pp.semantic()
	out := make([]WireField, 0, len(values))
	for key, v := range values {
		code, _ := pp.fields.ToWire(key)
		out = append(out, WireField{Code: code, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Wire renders the params as form values.
func (pp *PurchaseParams) Wire() url.Values {
	form := make(url.Values)
	for _, f := range pp.WireFields() {
		form.Set(f.Code, f.Value)
	}
	return form
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
