package payment

import (
	"strings"
	"time"
)

// Settings is the processor section of the application configuration.
type Settings struct {
	EntryURL       string
	AccessKey      string
	Secret         string
	HashAlgorithm  string
	OrderPrefix    string
	PurchaseFields map[string]string
	ResultFields   map[string]string
	MaxRetry       int
	SessionTimeout time.Duration
	ConfirmScreen  bool
	ReturnURL      string
	CancelURL      string
}

// Processor holds the validated, immutable protocol components for one
// payment processor account.
type Processor struct {
	entryURL       string
	accessKey      string
	maxRetry       int
	sessionTimeout time.Duration
	confirmScreen  bool
	returnURL      string
	cancelURL      string

	purchaseFields *FieldMap
	resultFields   *FieldMap
	signer         *Signer
	orderIDs       *OrderIDCodec
	now            func() time.Time
}

// NewProcessor validates s and builds every protocol component up front.
func NewProcessor(s Settings) (*Processor, error) {
	if strings.TrimSpace(s.AccessKey) == "" {
		return nil, configErrorf("processor access key is empty")
	}
	if s.MaxRetry < 0 {
		return nil, configErrorf("max retry must not be negative")
	}
	if s.SessionTimeout < 0 {
		return nil, configErrorf("session timeout must not be negative")
	}

	alg, err := ParseAlgorithm(s.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(alg, s.Secret)
	if err != nil {
		return nil, err
	}
	orderIDs, err := NewOrderIDCodec(s.OrderPrefix)
	if err != nil {
		return nil, err
	}
	purchaseFields, err := NewFieldMap("purchase", s.PurchaseFields, PurchaseRequiredKeys())
	if err != nil {
		return nil, err
	}
	resultFields, err := NewFieldMap("result", s.ResultFields, ResultRequiredKeys())
	if err != nil {
		return nil, err
	}

	return &Processor{
		entryURL:       s.EntryURL,
		accessKey:      s.AccessKey,
		maxRetry:       s.MaxRetry,
		sessionTimeout: s.SessionTimeout,
		confirmScreen:  s.ConfirmScreen,
		returnURL:      s.ReturnURL,
		cancelURL:      s.CancelURL,
		purchaseFields: purchaseFields,
		resultFields:   resultFields,
		signer:         signer,
		orderIDs:       orderIDs,
		now:            time.Now,
	}, nil
}

// EntryURL is where the signed purchase form is posted.
func (p *Processor) EntryURL() string { return p.entryURL }

// SessionTimeout is the processor-side checkout session lifetime.
func (p *Processor) SessionTimeout() time.Duration { return p.sessionTimeout }

func (p *Processor) Signer() *Signer { return p.signer }

func (p *Processor) OrderIDs() *OrderIDCodec { return p.orderIDs }

// ResultFields exposes the inbound mapping, used to build test notifications.
func (p *Processor) ResultFields() *FieldMap { return p.resultFields }
