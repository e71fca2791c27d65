package payment

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// PaymentMethod is derived from the payment_type field of a notification.
type PaymentMethod int

const (
	MethodUnknown PaymentMethod = iota
	MethodCard
	MethodCarrierBilling
)

const (
	paymentTypeCard    = "0"
	paymentTypeCarrier = "9"
)

func (m PaymentMethod) String() string {
	switch m {
	case MethodCard:
		return "card"
	case MethodCarrierBilling:
		return "carrier_billing"
	}
	return "unknown"
}

// signatureOrder returns the positional field list signed for this method.
func (m PaymentMethod) signatureOrder() []string {
	if m == MethodCarrierBilling {
		return CarrierSignatureOrder
	}
	return CardSignatureOrder
}

// Charge is the monetary claim of a verified notification.
type Charge struct {
	Amount   int64
	Tax      int64
	Currency string
}

// ResultParams is a read-only, semantically keyed view of one notification.
type ResultParams struct {
	values   map[string]string
	signer   *Signer
	verified bool
}

// ParseResult maps a wire notification onto semantic keys. Unknown wire codes
// are dropped; repeated codes keep their first value.
func (p *Processor) ParseResult(form url.Values) *ResultParams {
	values := make(map[string]string, len(form))
	for code, vs := range form {
		key, ok := p.resultFields.ToSemantic(code)
		if !ok || len(vs) == 0 {
			continue
		}
		values[key] = vs[0]
	}
	return &ResultParams{values: values, signer: p.signer}
}

// Get returns the raw value of a semantic key.
func (r *ResultParams) Get(key string) string { return r.values[key] }

// Fields returns a copy of all mapped values, for audit storage.
func (r *ResultParams) Fields() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *ResultParams) OrderRef() string    { return r.values[KeyOrderID] }
func (r *ResultParams) Job() string         { return r.values[KeyJob] }
func (r *ResultParams) Status() string      { return r.values[KeyStatus] }
func (r *ResultParams) PaymentType() string { return r.values[KeyPaymentType] }
func (r *ResultParams) ErrorCode() string   { return r.values[KeyErrorCode] }

// HasError reports whether the processor flagged the notification as failed.
func (r *ResultParams) HasError() bool {
	return strings.TrimSpace(r.values[KeyErrorCode]) != ""
}

// PaymentMethod classifies the payment_type field.
func (r *ResultParams) PaymentMethod() (PaymentMethod, error) {
	switch r.values[KeyPaymentType] {
	case paymentTypeCard:
		return MethodCard, nil
	case paymentTypeCarrier:
		return MethodCarrierBilling, nil
	}
	return MethodUnknown, &FieldError{
		Field: KeyPaymentType,
		Err:   errors.New("unsupported payment type " + strconv.Quote(r.values[KeyPaymentType])),
	}
}

func (r *ResultParams) IsCard() bool {
	m, err := r.PaymentMethod()
	return err == nil && m == MethodCard
}

func (r *ResultParams) IsCarrierBilling() bool {
	m, err := r.PaymentMethod()
	return err == nil && m == MethodCarrierBilling
}

// SignatureFields returns the method-specific positional fields; absent
// fields contribute empty strings.
func (r *ResultParams) SignatureFields(m PaymentMethod) []string {
	order := m.signatureOrder()
	out := make([]string, len(order))
	for i, key := range order {
		out[i] = r.values[key]
	}
	return out
}

// Verify checks the signature for the notification's payment method.
func (r *ResultParams) Verify() error {
	m, err := r.PaymentMethod()
	if err != nil {
		return err
	}
	if !r.signer.Verify(r.SignatureFields(m), r.values[KeySignature]) {
		return ErrSignatureInvalid
	}
	r.verified = true
	return nil
}

// Charge parses the amount, tax and currency. It refuses to run before Verify
// has succeeded.
func (r *ResultParams) Charge() (Charge, error) {
	if !r.verified {
		return Charge{}, ErrUnverified
	}
	amount, err := parseAmount(KeyAmount, r.values[KeyAmount])
	if err != nil {
		return Charge{}, err
	}
	tax, err := parseAmount(KeyTax, r.values[KeyTax])
	if err != nil {
		return Charge{}, err
	}
	currency := strings.TrimSpace(r.values[KeyCurrency])
	if currency == "" {
		return Charge{}, &FieldError{Field: KeyCurrency, Err: errors.New("missing")}
	}
	return Charge{Amount: amount, Tax: tax, Currency: currency}, nil
}

func parseAmount(field, raw string) (int64, error) {
	if raw == "" {
		return 0, &FieldError{Field: field, Err: errors.New("missing")}
	}
	if raw[0] == '-' {
		return 0, &FieldError{Field: field, Err: errors.New("negative")}
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, &FieldError{Field: field, Err: errors.New("not a decimal integer")}
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Err: errors.New("out of range")}
	}
	return n, nil
}

// EncodeResult renders semantic notification fields as a signed wire form, the
// way the processor would deliver them. It is used to simulate callbacks.
func (p *Processor) EncodeResult(fields map[string]string) (url.Values, error) {
	values := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values[KeyAccessKey] = p.accessKey

	r := &ResultParams{values: values, signer: p.signer}
	m, err := r.PaymentMethod()
	if err != nil {
		return nil, err
	}
	values[KeySignature] = p.signer.Sign(r.SignatureFields(m))

	form := make(url.Values, len(values))
	for key, v := range values {
		code, ok := p.resultFields.ToWire(key)
		if !ok {
			return nil, &FieldError{Field: key, Err: errors.New("not in result field map")}
		}
		form.Set(code, v)
	}
	return form, nil
}
