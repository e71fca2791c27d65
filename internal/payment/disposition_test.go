package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		method PaymentMethod
		job    string
		status string
		want   Disposition
		ok     bool
	}{
		{MethodCard, JobCapture, StatusCapture, DispositionCapture, true},
		{MethodCard, JobVoid, StatusVoid, DispositionCancel, true},
		{MethodCard, JobReturn, StatusReturn, DispositionCancel, true},
		{MethodCard, JobReturnX, StatusReturnX, DispositionCancel, true},
		{MethodCard, JobCapture, StatusReqSuccess, 0, false},
		{MethodCard, JobCancel, StatusCancel, 0, false},
		{MethodCard, JobVoid, StatusCapture, 0, false},

		{MethodCarrierBilling, JobCapture, StatusCapture, DispositionCapture, true},
		{MethodCarrierBilling, JobCapture, StatusReqSuccess, DispositionIgnore, true},
		{MethodCarrierBilling, JobCancel, StatusCancel, DispositionCancel, true},
		{MethodCarrierBilling, JobVoid, StatusVoid, 0, false},
		{MethodCarrierBilling, JobReturn, StatusReturn, 0, false},

		{MethodUnknown, JobCapture, StatusCapture, 0, false},
		{MethodCard, "capture", "capture", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.method.String()+"/"+tt.job+"/"+tt.status, func(t *testing.T) {
			got, ok := Classify(tt.method, tt.job, tt.status)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDispositionString(t *testing.T) {
	assert.Equal(t, "capture", DispositionCapture.String())
	assert.Equal(t, "cancel", DispositionCancel.String())
	assert.Equal(t, "ignore", DispositionIgnore.String())
	assert.Equal(t, "none", Disposition(0).String())
}
