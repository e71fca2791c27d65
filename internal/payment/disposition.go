package payment

// Job and status codes carried by result notifications.
const (
	JobVoid    = "VOID"
	JobReturn  = "RETURN"
	JobReturnX = "RETURNX"
	JobCancel  = "CANCEL"

	StatusCapture    = "CAPTURE"
	StatusReqSuccess = "REQSUCCESS"
	StatusCancel     = "CANCEL"
	StatusVoid       = "VOID"
	StatusReturn     = "RETURN"
	StatusReturnX    = "RETURNX"
)

// Disposition is the action chosen for an authenticated notification.
type Disposition int

const (
	DispositionCapture Disposition = iota + 1
	DispositionCancel
	DispositionIgnore
)

func (d Disposition) String() string {
	switch d {
	case DispositionCapture:
		return "capture"
	case DispositionCancel:
		return "cancel"
	case DispositionIgnore:
		return "ignore"
	}
	return "none"
}

type dispositionKey struct {
	method PaymentMethod
	job    string
	status string
}

// The REQSUCCESS interim acknowledgement only exists for carrier billing; card
// notifications with that status fall through to UnknownState.
var dispositionTable = map[dispositionKey]Disposition{
	{MethodCard, JobCapture, StatusCapture}: DispositionCapture,
	{MethodCard, JobVoid, StatusVoid}:       DispositionCancel,
	{MethodCard, JobReturn, StatusReturn}:   DispositionCancel,
	{MethodCard, JobReturnX, StatusReturnX}: DispositionCancel,

	{MethodCarrierBilling, JobCapture, StatusCapture}:    DispositionCapture,
	{MethodCarrierBilling, JobCapture, StatusReqSuccess}: DispositionIgnore,
	{MethodCarrierBilling, JobCancel, StatusCancel}:      DispositionCancel,
}

// Classify looks up the disposition for a job/status pair. ok is false for
// combinations outside the table.
func Classify(method PaymentMethod, job, status string) (d Disposition, ok bool) {
	d, ok = dispositionTable[dispositionKey{method: method, job: job, status: status}]
	return d, ok
}
