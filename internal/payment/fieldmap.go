package payment

import (
	"sort"
	"strings"
)

// Semantic keys shared by the purchase and result directions.
const (
	KeyAccessKey       = "access_key"
	KeyOrderID         = "order_id"
	KeyAmount          = "amount"
	KeyTax             = "tax"
	KeyCurrency        = "currency"
	KeySignature       = "signature"
	KeyJob             = "job"
	KeyClientField1    = "client_field1"
	KeyClientField2    = "client_field2"
	KeyClientField3    = "client_field3"
	KeyDateTime        = "datetime"
	KeyReturnURL       = "ret_url"
	KeyCancelURL       = "cancel_url"
	KeyRetryMax        = "retry_max"
	KeySessionTimeout  = "session_timeout"
	KeyConfirm         = "confirm"
	KeyStatus          = "status"
	KeyAccessID        = "access_id"
	KeyCardType        = "card_type"
	KeyMethod          = "method"
	KeyPayTimes        = "pay_times"
	KeyApprovalCode    = "approval_code"
	KeyTransactionID   = "transaction_id"
	KeyTransactionDate = "transaction_date"
	KeyErrorCode       = "error_code"
	KeyErrorInfo       = "error_info"
	KeyPaymentType     = "payment_type"
	KeySettlementCode  = "carrier_settlement_code"
)

var clientFieldKeys = []string{KeyClientField1, KeyClientField2, KeyClientField3}

// DefaultPurchaseFields is the wire mapping for outbound purchase requests.
func DefaultPurchaseFields() map[string]string {
	return map[string]string{
		"p001": KeyAccessKey,
		"p002": KeyOrderID,
		"p003": KeyAmount,
		"p004": KeyTax,
		"p005": KeyCurrency,
		"p006": KeyDateTime,
		"p007": KeySignature,
		"p008": KeyReturnURL,
		"p009": KeyCancelURL,
		"p010": KeyClientField1,
		"p011": KeyClientField2,
		"p012": KeyClientField3,
		"p013": KeyRetryMax,
		"p014": KeySessionTimeout,
		"p015": KeyConfirm,
		"p016": KeyJob,
	}
}

// DefaultResultFields is the wire mapping for inbound result notifications.
func DefaultResultFields() map[string]string {
	return map[string]string{
		"p001": KeyAccessKey,
		"p002": KeyOrderID,
		"p003": KeyAmount,
		"p004": KeyTax,
		"p005": KeyCurrency,
		"p006": KeyJob,
		"p007": KeySignature,
		"p008": KeyStatus,
		"p009": KeyAccessID,
		"p010": KeyCardType,
		"p011": KeyMethod,
		"p012": KeyPayTimes,
		"p013": KeyApprovalCode,
		"p014": KeyTransactionID,
		"p015": KeyTransactionDate,
		"p016": KeyErrorCode,
		"p017": KeyErrorInfo,
		"p018": KeyPaymentType,
		"p019": KeyClientField1,
		"p020": KeyClientField2,
		"p021": KeyClientField3,
		"p022": KeySettlementCode,
	}
}

// PurchaseRequiredKeys lists every key the purchase builder may populate.
func PurchaseRequiredKeys() []string {
	return []string{
		KeyAccessKey, KeyOrderID, KeyAmount, KeyTax, KeyCurrency, KeyDateTime,
		KeySignature, KeyReturnURL, KeyCancelURL, KeyClientField1, KeyClientField2,
		KeyClientField3, KeyRetryMax, KeySessionTimeout, KeyConfirm, KeyJob,
	}
}

// ResultRequiredKeys lists the keys needed for validation and both signature orders.
func ResultRequiredKeys() []string {
	keys := []string{
		KeyOrderID, KeyAmount, KeyTax, KeyCurrency, KeyJob, KeyStatus,
		KeySignature, KeyErrorCode, KeyPaymentType,
	}
	keys = append(keys, CardSignatureOrder...)
	keys = append(keys, CarrierSignatureOrder...)
	return keys
}

// FieldMap is a bidirectional mapping between wire codes and semantic keys.
type FieldMap struct {
	name       string
	toWire     map[string]string
	toSemantic map[string]string
}

// NewFieldMap builds a FieldMap from a wire code -> semantic key table.
// Every key in required must be mapped.
func NewFieldMap(name string, wireToSemantic map[string]string, required []string) (*FieldMap, error) {
	fm := &FieldMap{
		name:       name,
		toWire:     make(map[string]string, len(wireToSemantic)),
		toSemantic: make(map[string]string, len(wireToSemantic)),
	}

	for code, key := range wireToSemantic {
		code = strings.TrimSpace(code)
		key = strings.TrimSpace(key)
		if code == "" || key == "" {
			return nil, configErrorf("%s field map: empty entry %q -> %q", name, code, key)
		}
		if prev, dup := fm.toWire[key]; dup {
			return nil, configErrorf("%s field map: %q mapped by both %s and %s", name, key, prev, code)
		}
		fm.toWire[key] = code
		fm.toSemantic[code] = key
	}

	var missing []string
	for _, key := range required {
		if _, ok := fm.toWire[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, configErrorf("%s field map: missing %s", name, strings.Join(missing, ", "))
	}
	return fm, nil
}

// ToWire returns the wire code for a semantic key.
func (m *FieldMap) ToWire(key string) (string, bool) {
	code, ok := m.toWire[key]
	return code, ok
}

// ToSemantic returns the semantic key for a wire code.
func (m *FieldMap) ToSemantic(code string) (string, bool) {
	key, ok := m.toSemantic[code]
	return key, ok
}
