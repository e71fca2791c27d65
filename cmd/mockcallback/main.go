package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"coursepay/internal/config"
	"coursepay/internal/payment"
	"coursepay/internal/pkg/httpclient"
	"coursepay/internal/pkg/utils"
)

func main() {
	target := flag.String("url", "http://localhost:8080/payment/callback", "Callback URL")
	orderID := flag.Int64("order", 0, "Local order id")
	amount := flag.Int64("amount", 0, "Amount in minor units")
	tax := flag.Int64("tax", 0, "Tax in minor units")
	currency := flag.String("currency", "jpy", "Currency")
	job := flag.String("job", payment.JobCapture, "Job code (CAPTURE, VOID, RETURN, RETURNX, CANCEL)")
	status := flag.String("status", payment.StatusCapture, "Status code (CAPTURE, REQSUCCESS, VOID, ...)")
	paymentType := flag.String("payment-type", "0", "Payment type (0 card, 9 carrier billing)")
	errorCode := flag.String("error-code", "", "Processor error code")
	tamper := flag.Bool("tamper", false, "Alter a signed field after signing")
	dryRun := flag.Bool("dry-run", false, "Only print the form, don't send")

	flag.Parse()

	if *orderID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -order is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	proc, err := payment.NewProcessor(cfg.Processor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building processor: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().Format("20060102150405")
	fields := map[string]string{
		payment.KeyOrderID:         proc.OrderIDs().Build(*orderID),
		payment.KeyAmount:          strconv.FormatInt(*amount, 10),
		payment.KeyTax:             strconv.FormatInt(*tax, 10),
		payment.KeyCurrency:        *currency,
		payment.KeyJob:             *job,
		payment.KeyStatus:          *status,
		payment.KeyPaymentType:     *paymentType,
		payment.KeyTransactionDate: now,
		payment.KeyTransactionID:   utils.RandomHex(8),
	}
	if *paymentType == "9" {
		fields[payment.KeyAccessID] = utils.RandomHex(6)
	} else {
		fields[payment.KeyCardType] = "VISA"
		fields[payment.KeyMethod] = "1"
		fields[payment.KeyPayTimes] = "1"
		fields[payment.KeyApprovalCode] = utils.RandomHex(3)
	}
	if *errorCode != "" {
		fields[payment.KeyErrorCode] = *errorCode
		fields[payment.KeyErrorInfo] = "simulated error"
	}

	form, err := proc.EncodeResult(fields)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding callback: %v\n", err)
		os.Exit(1)
	}
	if *tamper {
		code, _ := proc.ResultFields().ToWire(payment.KeyTransactionDate)
		form.Set(code, form.Get(code)+"0")
	}

	fmt.Printf("Body: %s\n", form.Encode())

	if *dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return
	}

	fmt.Printf("\nSending to %s...\n", *target)
	resp, err := httpclient.New().WithRetryCount(0).PostForm(context.Background(), *target, form)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Ack: %s\n", string(resp.Body))
	if string(resp.Body) != payment.AckOK {
		os.Exit(2)
	}
}
