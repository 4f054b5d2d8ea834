package payu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// FlexString accepts both JSON strings and numbers; PayU is not consistent between the two
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(strings.TrimSpace(string(b)))
	return nil
}

// TransactionDetail is one entry of transaction_details in a verify_payment response
type TransactionDetail struct {
	MihPayID       FlexString `json:"mihpayid"`
	RequestID      FlexString `json:"request_id"`
	BankRefNum     FlexString `json:"bank_ref_num"`
	Amount         FlexString `json:"amt"`
	TxnID          FlexString `json:"txnid"`
	ProductInfo    FlexString `json:"productinfo"`
	FirstName      FlexString `json:"firstname"`
	BankCode       FlexString `json:"bankcode"`
	UDF1           FlexString `json:"udf1"`
	UDF2           FlexString `json:"udf2"`
	UDF3           FlexString `json:"udf3"`
	Field9         FlexString `json:"field9"`
	ErrorCode      FlexString `json:"error_code"`
	ErrorMessage   FlexString `json:"error_Message"`
	AddedOn        FlexString `json:"addedon"`
	Mode           FlexString `json:"mode"`
	Status         FlexString `json:"status"`
	UnmappedStatus FlexString `json:"unmappedstatus"`
}

type verifyResponse struct {
	Status             FlexString                   `json:"status"`
	Msg                string                       `json:"msg"`
	TransactionDetails map[string]TransactionDetail `json:"transaction_details"`
}

// VerificationResult is the flat status object returned to callers of Verify
type VerificationResult struct {
	TxnID         string `json:"txnid"`
	Found         bool   `json:"found"`
	Status        string `json:"status"`
	GatewayStatus string `json:"gateway_status"`
	Amount        string `json:"amount,omitempty"`
	MihPayID      string `json:"mihpayid,omitempty"`
	Mode          string `json:"mode,omitempty"`
	BankRefNum    string `json:"bank_ref_num,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ProductInfo   string `json:"productinfo,omitempty"`
	AddedOn       string `json:"added_on,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Client talks to the merchant postservice API
type Client struct {
	config Config
	http   *resty.Client
}

// NewClient creates a gateway client with the configured timeout
func NewClient(config Config) *Client {
	return NewClientWithResty(config, resty.New())
}

// NewClientWithResty lets callers share or instrument a resty client
func NewClientWithResty(config Config, rc *resty.Client) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	rc.SetTimeout(config.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{config: config, http: rc}
}

// Config returns the merchant configuration in use
func (c *Client) Config() Config {
	return c.config
}

// Verify asks PayU for the authoritative status of txnID. It never changes local state.
func (c *Client) Verify(ctx context.Context, txnID string) (*VerificationResult, error) {
	txnID = strings.TrimSpace(txnID)
	if txnID == "" {
		return nil, ErrMissingTxnID
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"key":     c.config.MerchantKey,
			"command": CommandVerifyPayment,
			"hash":    CommandHash(c.config.MerchantKey, CommandVerifyPayment, txnID, c.config.MerchantSalt),
			"var1":    txnID,
		}).
		Post(c.config.VerifyURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode())
	}

	return parseVerifyResponse(txnID, resp.Body())
}

func parseVerifyResponse(txnID string, body []byte) (*VerificationResult, error) {
	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	result := &VerificationResult{
		TxnID:   txnID,
		Status:  StatusNotFound,
		Message: vr.Msg,
	}

	detail, ok := vr.TransactionDetails[txnID]
	if !ok || string(vr.Status) == "0" || strings.EqualFold(string(detail.Status), "Not Found") {
		result.GatewayStatus = string(detail.Status)
		return result, nil
	}

	result.Found = true
	result.GatewayStatus = string(detail.Status)
	result.Status = NormalizeStatus(string(detail.Status))
	result.Amount = string(detail.Amount)
	result.MihPayID = string(detail.MihPayID)
	result.Mode = string(detail.Mode)
	result.BankRefNum = string(detail.BankRefNum)
	result.ProductInfo = string(detail.ProductInfo)
	result.AddedOn = string(detail.AddedOn)
	if msg := string(detail.ErrorMessage); msg != "" && !strings.EqualFold(msg, "No Error") {
		result.ErrorMessage = msg
	} else if f9 := string(detail.Field9); result.Status == StatusFailure {
		result.ErrorMessage = f9
	}
	return result, nil
}
