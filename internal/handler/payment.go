package handler

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"coursepay/internal/middleware"
	"coursepay/internal/models"
	"coursepay/internal/payment"
	"coursepay/internal/pkg/utils"
	"coursepay/internal/repository"
)

// OrderService is the order access needed by the payment endpoints.
type OrderService interface {
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	MarkPaying(ctx context.Context, id int64) error
}

// CallbackReconciler processes one processor notification.
type CallbackReconciler interface {
	Handle(ctx context.Context, form url.Values, rawBody string) (*payment.Outcome, error)
}

// CallbackHistory lists stored callbacks of an order.
type CallbackHistory interface {
	FindByOrder(ctx context.Context, orderID int64) ([]models.CallbackLog, error)
}

// PaymentHandler serves checkout, processor callbacks and the result page.
type PaymentHandler struct {
	proc       *payment.Processor
	reconciler CallbackReconciler
	orders     OrderService
	history    CallbackHistory
	baseURL    string
	logger     *zap.Logger
}

func NewPaymentHandler(
	proc *payment.Processor,
	reconciler CallbackReconciler,
	orders OrderService,
	history CallbackHistory,
	baseURL string,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		proc:       proc,
		reconciler: reconciler,
		orders:     orders,
		history:    history,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// ── Checkout ─────────────────────────────────────────────────────────

// Checkout moves the order to paying and renders a self-submitting form that
// posts the signed purchase request to the processor.
func (h *PaymentHandler) Checkout(c echo.Context) error {
	id, ok := orderIDParam(c)
	if !ok {
		return h.renderResult(c, http.StatusBadRequest, "Error", "Invalid order id.", nil)
	}
	ctx := c.Request().Context()

	order, err := h.orders.FindByID(ctx, id)
	if errors.Is(err, payment.ErrOrderNotFound) {
		return h.renderResult(c, http.StatusNotFound, "Error", "Order not found.", nil)
	}
	if err != nil {
		h.logger.Error("Failed to load order", zap.Int64("order_id", id), zap.Error(err))
		return h.renderResult(c, http.StatusInternalServerError, "Error", "Please try again later.", nil)
	}
	if !order.Payable() {
		return h.renderResult(c, http.StatusConflict, "Already processed", "This order cannot be paid again.", order)
	}

	req := payment.PurchaseRequest{
		OrderID:      order.ID,
		Amount:       order.TotalCost,
		Tax:          order.TotalTax,
		Currency:     order.Currency,
		ClientFields: []string{strconv.FormatInt(order.UserID, 10)},
	}
	if h.baseURL != "" {
		req.ReturnURL = h.baseURL + "/payment/result/" + strconv.FormatInt(order.ID, 10)
	}
	params, err := h.proc.NewPurchase(req)
	if err != nil {
		h.logger.Warn("Cannot build purchase request", zap.Int64("order_id", id), zap.Error(err))
		return h.renderResult(c, http.StatusUnprocessableEntity, "Error", "This order cannot be paid online.", order)
	}

	if err := h.orders.MarkPaying(ctx, id); err != nil {
		if errors.Is(err, repository.ErrOrderNotPayable) {
			return h.renderResult(c, http.StatusConflict, "Already processed", "This order cannot be paid again.", order)
		}
		h.logger.Error("Failed to mark order paying", zap.Int64("order_id", id), zap.Error(err))
		return h.renderResult(c, http.StatusInternalServerError, "Error", "Please try again later.", nil)
	}

	h.logger.Info("Checkout started",
		zap.Int64("order_id", id),
		zap.String("processor_order_id", params.OrderID),
		zap.Int64("amount", params.Amount),
	)

	return render(c, http.StatusOK, checkoutTemplate, map[string]interface{}{
		"EntryURL": h.proc.EntryURL(),
		"Fields":   params.WireFields(),
	})
}

// ── Processor callback ───────────────────────────────────────────────

// Callback receives the processor's asynchronous result notification and
// answers with the acknowledgement token. Every failure is answered with
// AckNG so the processor may redeliver.
func (h *PaymentHandler) Callback(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Warn("Failed to read callback body", zap.Error(err))
		return ack(c, payment.AckNG)
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		h.logger.Warn("Malformed callback body", zap.Error(err))
		return ack(c, payment.AckNG)
	}

	if _, err := h.reconciler.Handle(c.Request().Context(), form, string(raw)); err != nil {
		return ack(c, payment.AckNG)
	}
	c.Set(middleware.CallbackAcceptedKey, true)
	return ack(c, payment.AckOK)
}

func ack(c echo.Context, token string) error {
	return c.String(http.StatusOK, token)
}

// ── Result page ──────────────────────────────────────────────────────

// Result shows the customer the current state of an order after returning
// from the processor.
func (h *PaymentHandler) Result(c echo.Context) error {
	id, ok := orderIDParam(c)
	if !ok {
		return h.renderResult(c, http.StatusBadRequest, "Error", "Invalid order id.", nil)
	}
	order, err := h.orders.FindByID(c.Request().Context(), id)
	if errors.Is(err, payment.ErrOrderNotFound) {
		return h.renderResult(c, http.StatusNotFound, "Error", "Order not found.", nil)
	}
	if err != nil {
		h.logger.Error("Failed to load order", zap.Int64("order_id", id), zap.Error(err))
		return h.renderResult(c, http.StatusInternalServerError, "Error", "Please try again later.", nil)
	}

	title, message := resultText(order.Status)
	return h.renderResult(c, http.StatusOK, title, message, order)
}

func resultText(status models.OrderStatus) (string, string) {
	switch status {
	case models.OrderStatusPurchased:
		return "Payment successful", "Thank you! Your courses are now available."
	case models.OrderStatusPaying:
		return "Payment pending", "We are waiting for the payment confirmation. This page can be refreshed."
	case models.OrderStatusRefunded:
		return "Payment cancelled", "The payment was cancelled or refunded."
	case models.OrderStatusCart:
		return "Payment not completed", "The payment was not completed. You can try again."
	}
	return "Unknown state", "Please contact support."
}

// ── Admin ────────────────────────────────────────────────────────────

// CallbackLogs lists the stored callbacks of an order.
func (h *PaymentHandler) CallbackLogs(c echo.Context) error {
	id, ok := orderIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"status": false,
			"msg":    "invalid order id",
			"obj":    nil,
		})
	}
	logs, err := h.history.FindByOrder(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("Failed to load callback logs", zap.Int64("order_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"status": false,
			"msg":    "internal error",
			"obj":    nil,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": true,
		"msg":    "Successful",
		"obj":    logs,
	})
}

// ── Rendering ────────────────────────────────────────────────────────

func orderIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

var checkoutTemplate = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Redirecting to payment</title>
</head>
<body onload="document.forms[0].submit()">
    <form method="POST" action="{{.EntryURL}}">
        {{range .Fields}}<input type="hidden" name="{{.Code}}" value="{{.Value}}">
        {{end}}<noscript><button type="submit">Continue to payment</button></noscript>
    </form>
</body>
</html>`))

var resultTemplate = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Payment</title>
    <style>
        body { font-family: sans-serif; background: #f2f2f2; margin: 0; padding: 20px; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        .box { background: #fff; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); padding: 40px; text-align: center; max-width: 400px; width: 100%; }
        h1 { color: #333; margin-bottom: 20px; }
        p { color: #666; margin-bottom: 10px; }
    </style>
</head>
<body>
    <div class="box">
        <h1>{{.Title}}</h1>
        {{if .OrderID}}<p>Order: <span>#{{.OrderID}}</span></p>{{end}}
        {{if .Amount}}<p>Amount: <span>{{.Amount}}</span></p>{{end}}
        <p>{{.Message}}</p>
    </div>
</body>
</html>`))

func (h *PaymentHandler) renderResult(c echo.Context, code int, title, message string, order *models.Order) error {
	data := map[string]interface{}{
		"Title":   title,
		"Message": message,
	}
	if order != nil {
		data["OrderID"] = order.ID
		data["Amount"] = utils.FormatAmount(order.TotalCost, order.Currency)
	}
	return render(c, code, resultTemplate, data)
}

func render(c echo.Context, code int, tmpl *template.Template, data interface{}) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return tmpl.Execute(c.Response().Writer, data)
}
